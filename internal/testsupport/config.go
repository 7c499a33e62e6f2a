package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dubber/internal/config"
)

// ConfigOption adjusts a generated test configuration.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns the default configuration with every directory moved
// under a per-test temp dir, the API bound to an ephemeral port, and the
// scratch free-space floor disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.BlobDir = filepath.Join(base, "objects")
	cfg.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Paths.EnvFile = ""
	cfg.Workflow.MinFreeScratchMB = 0

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// WithAPIKeys fills the three service credentials with placeholder values.
func WithAPIKeys() ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) {
		cfg.Transcription.APIKey = "test-deepgram"
		cfg.Translation.APIKey = "test-openai"
		cfg.Synthesis.APIKey = "test-cartesia"
	}
}

// WithStubFFmpeg points the transcoder at an executable that exits 0 without
// doing anything.
func WithStubFFmpeg() ConfigOption {
	return func(t testing.TB, base string, cfg *config.Config) {
		t.Helper()
		bin := filepath.Join(base, "bin", "ffmpeg")
		if err := os.MkdirAll(filepath.Dir(bin), 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		if err := os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatalf("write ffmpeg stub: %v", err)
		}
		cfg.Transcoder.Binary = bin
	}
}
