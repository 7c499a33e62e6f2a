package testsupport

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// WriteVideo writes a size-byte file that starts with an MP4 ftyp box, which
// is enough for content sniffing. Anything past the header is filler.
func WriteVideo(t testing.TB, path string, size int64) {
	t.Helper()
	header := make([]byte, 20)
	binary.BigEndian.PutUint32(header[0:4], 20)
	copy(header[4:], "ftypisom")
	copy(header[16:], "isom")
	writeFixture(t, path, header, size)
}

// WriteAudio writes a size-byte file that starts with an ID3 tag marker, the
// way an encoded MP3 does.
func WriteAudio(t testing.TB, path string, size int64) {
	t.Helper()
	writeFixture(t, path, []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), size)
}

func writeFixture(t testing.TB, path string, header []byte, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := header
	if pad := size - int64(len(header)); pad > 0 {
		data = append(append([]byte(nil), header...), bytes.Repeat([]byte{0}, int(pad))...)
	} else if size > 0 {
		data = header[:size]
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
