package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CopyResult describes the size and digest of a file or verified copy.
type CopyResult struct {
	Size   int64
	SHA256 string
}

// HashFile returns the size and SHA256 of a regular file.
func HashFile(path string) (CopyResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return CopyResult{}, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return CopyResult{}, fmt.Errorf("source %q is a directory", path)
	}
	in, err := os.Open(path)
	if err != nil {
		return CopyResult{}, err
	}
	defer in.Close()

	hasher := sha256.New()
	n, err := io.Copy(hasher, in)
	if err != nil {
		return CopyResult{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return CopyResult{Size: n, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// WriteVerified streams r into path. The data lands in a temporary file
// beside path and is renamed into place only after the non-zero fields of
// expect match what was written, so readers never observe a partial or
// corrupted file.
func WriteVerified(path string, r io.Reader, expect CopyResult) (CopyResult, error) {
	hasher := sha256.New()
	var written int64
	err := writeAtomic(path, 0o644, func(out io.Writer) error {
		n, copyErr := io.Copy(io.MultiWriter(out, hasher), r)
		written = n
		return copyErr
	}, func() error {
		if expect.Size > 0 && written != expect.Size {
			return fmt.Errorf("copy size mismatch: expected %d bytes, copied %d bytes", expect.Size, written)
		}
		if expect.SHA256 != "" && !strings.EqualFold(expect.SHA256, hex.EncodeToString(hasher.Sum(nil))) {
			return fmt.Errorf("copy hash mismatch: file corrupted during copy")
		}
		return nil
	})
	if err != nil {
		return CopyResult{}, err
	}
	return CopyResult{Size: written, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// WriteFileAtomic writes data to path via a temporary file and rename.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	return writeAtomic(path, mode, func(out io.Writer) error {
		_, err := out.Write(data)
		return err
	}, nil)
}

func writeAtomic(path string, mode os.FileMode, fill func(io.Writer) error, verify func() error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := fill(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if verify != nil {
		if err := verify(); err != nil {
			return err
		}
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	return nil
}
