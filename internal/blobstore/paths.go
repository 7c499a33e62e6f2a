package blobstore

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dubber/internal/services"
)

// Artifact file names, fixed per stage.
const (
	OriginalName    = "original"
	TranscriptName  = "transcript.txt"
	SynthesizedName = "synthesized.mp3"
	AlignedName     = "aligned.mp3"
)

const rootPrefix = "videos"

// OriginalPath returns where the upload path stores a user's source video.
// The folder token combines the upload time with the file's base name.
func OriginalPath(userID string, at time.Time, filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = sanitizeSegment(base)
	if base == "" {
		base = "upload"
	}
	folder := strconv.FormatInt(at.UnixMilli(), 10) + "_" + base
	return path.Join(rootPrefix, userID, folder, OriginalName)
}

// ArtifactPath returns videos/{userID}/{folder}/{name}.
func ArtifactPath(userID, folder, name string) string {
	return path.Join(rootPrefix, userID, folder, name)
}

// FolderToken extracts the folder segment (third "/"-separated segment) of a
// record's filePath.
func FolderToken(filePath string) (string, error) {
	segments := strings.Split(strings.TrimSpace(filePath), "/")
	if len(segments) < 3 || strings.TrimSpace(segments[2]) == "" {
		return "", services.Wrap(services.ErrValidation, "blobstore", "folder token",
			fmt.Sprintf("file path %q has no folder segment", filePath), nil)
	}
	return segments[2], nil
}

func sanitizeSegment(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r == '/' || r == '\\' || r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "." || out == ".." {
		return ""
	}
	return out
}
