package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	"dubber/internal/fileutil"
	"dubber/internal/services"
)

const (
	defaultContentType = "application/octet-stream"
	metaSHA256         = "sha256"
	// fileblob keeps object attributes in "<key>.attrs" beside each object.
	attrsSuffix = ".attrs"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Path        string    `json:"path"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	StoredAt    time.Time `json:"storedAt"`
}

// Store is a path-addressed object store over a gocloud bucket.
type Store struct {
	bucket *blob.Bucket
	root   string
}

// New opens a file-backed bucket rooted at root, creating the directory if
// needed.
func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "blobstore", "open", "root directory required", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	bucket, err := fileblob.OpenBucket(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open blob bucket: %w", err)
	}
	return &Store{bucket: bucket, root: abs}, nil
}

// NewWithBucket wraps an already opened bucket, such as one from
// blob.OpenBucket with an s3:// or gs:// URL.
func NewWithBucket(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Root returns the directory backing a file bucket, or "" for other drivers.
func (s *Store) Root() string {
	return s.root
}

// Close releases the bucket.
func (s *Store) Close() error {
	if s == nil || s.bucket == nil {
		return nil
	}
	return s.bucket.Close()
}

// ProgressFunc receives the bytes streamed so far and the file size.
type ProgressFunc func(written, total int64)

// Upload copies the local file into the store at objectPath, replacing any
// existing object. The file's SHA256 travels as object metadata.
func (s *Store) Upload(ctx context.Context, localPath, objectPath, contentType string) error {
	return s.UploadWithProgress(ctx, localPath, objectPath, contentType, nil)
}

// UploadWithProgress is Upload with progress reported as the file streams.
func (s *Store) UploadWithProgress(ctx context.Context, localPath, objectPath, contentType string, progress ProgressFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := objectKey(objectPath)
	if err != nil {
		return err
	}
	digest, err := fileutil.HashFile(localPath)
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectPath, err)
	}
	in, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectPath, err)
	}
	defer in.Close()

	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	opts := &blob.WriterOptions{
		ContentType: contentType,
		Metadata:    map[string]string{metaSHA256: digest.SHA256},
	}
	var body io.Reader = in
	if progress != nil {
		body = &progressReader{r: in, total: digest.Size, progress: progress}
	}
	if err := s.bucket.Upload(ctx, key, body, opts); err != nil {
		return fmt.Errorf("upload %s: %w", objectPath, err)
	}
	return nil
}

// Download copies the object at objectPath to localPath, verifying size and
// digest. A missing object reports ErrNotFound.
func (s *Store) Download(ctx context.Context, objectPath, localPath string) error {
	info, err := s.Stat(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	r, err := s.bucket.NewReader(ctx, info.Path, nil)
	if err != nil {
		return fmt.Errorf("download %s: %w", objectPath, notFound(err))
	}
	defer r.Close()
	if _, err := fileutil.WriteVerified(localPath, r, fileutil.CopyResult{Size: info.Size, SHA256: info.SHA256}); err != nil {
		return fmt.Errorf("download %s: %w", objectPath, err)
	}
	return nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := objectKey(objectPath)
	if err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete %s: %w", objectPath, err)
	}
	return nil
}

// Stat returns the recorded attributes for objectPath.
func (s *Store) Stat(ctx context.Context, objectPath string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	key, err := objectKey(objectPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", objectPath, notFound(err))
	}
	return ObjectInfo{
		Path:        key,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		SHA256:      attrs.Metadata[metaSHA256],
		StoredAt:    attrs.ModTime.UTC(),
	}, nil
}

// Exists reports whether an object is stored at objectPath.
func (s *Store) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := s.Stat(ctx, objectPath)
	if errors.Is(err, services.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

type progressReader struct {
	r        io.Reader
	total    int64
	written  int64
	progress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.written += int64(n)
		p.progress(p.written, p.total)
	}
	return n, err
}

func notFound(err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return services.ErrNotFound
	}
	return err
}

// objectKey cleans objectPath into a bucket key confined to the bucket root.
func objectKey(objectPath string) (string, error) {
	cleaned := ""
	if trimmed := strings.TrimSpace(objectPath); trimmed != "" {
		cleaned = strings.TrimPrefix(path.Clean("/"+trimmed), "/")
	}
	if cleaned == "" {
		return "", services.Wrap(services.ErrValidation, "blobstore", "resolve",
			fmt.Sprintf("invalid object path %q", objectPath), nil)
	}
	if strings.HasSuffix(cleaned, attrsSuffix) {
		return "", services.Wrap(services.ErrValidation, "blobstore", "resolve",
			fmt.Sprintf("object path %q is reserved", objectPath), nil)
	}
	return cleaned, nil
}
