package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"dubber/internal/services"
)

// DefaultBinary is the executable resolved from PATH when none is configured.
const DefaultBinary = "ffmpeg"

// Transcription services expect mono 16 kHz signed 16-bit PCM.
const (
	speechSampleRate = "16000"
	speechChannels   = "1"
	speechCodec      = "pcm_s16le"
)

// CommandRunner executes name with args and returns combined output on failure.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Transcoder runs ffmpeg jobs against local files.
type Transcoder struct {
	binary  string
	timeout time.Duration
	runner  CommandRunner
}

// Option customizes the transcoder.
type Option func(*Transcoder)

// WithCommandRunner overrides process execution (useful for tests).
func WithCommandRunner(runner CommandRunner) Option {
	return func(t *Transcoder) {
		if runner != nil {
			t.runner = runner
		}
	}
}

// WithTimeout bounds each ffmpeg invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(t *Transcoder) {
		t.timeout = timeout
	}
}

// New constructs a transcoder for the given binary.
func New(binary string, opts ...Option) *Transcoder {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	t := &Transcoder{binary: binary, runner: runCommand}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Binary returns the configured executable.
func (t *Transcoder) Binary() string {
	return t.binary
}

// ExtractAudio writes the audio of source to dest as mono 16-bit PCM WAV.
func (t *Transcoder) ExtractAudio(ctx context.Context, source, dest string) error {
	if err := requireInput(source); err != nil {
		return services.Wrap(services.ErrValidation, "ffmpeg", "extract audio", "", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", speechChannels,
		"-ar", speechSampleRate,
		"-c:a", speechCodec,
		dest,
	}
	if err := t.run(ctx, args); err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "extract audio", "", err)
	}
	return nil
}

// ApplyFilter runs an audio filter graph over source and writes dest. The
// output container follows the extension of dest.
func (t *Transcoder) ApplyFilter(ctx context.Context, source, dest, filter string) error {
	if err := requireInput(source); err != nil {
		return services.Wrap(services.ErrValidation, "ffmpeg", "apply filter", "", err)
	}
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return services.Wrap(services.ErrValidation, "ffmpeg", "apply filter", "filter graph required", nil)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-af", filter,
		dest,
	}
	if err := t.run(ctx, args); err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "apply filter", "", err)
	}
	return nil
}

func (t *Transcoder) run(ctx context.Context, args []string) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	err := t.runner(ctx, t.binary, args...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", services.ErrTimeout, err)
	}
	return err
}

func requireInput(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("input path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input %q is a directory", path)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
