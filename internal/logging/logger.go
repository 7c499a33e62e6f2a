package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dubber/internal/config"
)

// Options describes logger construction parameters.
//
// OutputPaths receive every enabled record; ErrorOutputPaths receive only
// errors. "stdout" and "stderr" are rendered in Format, anything else is a
// file path that always gets JSON lines so the daemon log stays machine
// readable regardless of the terminal format.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
	// Writer replaces stdout when set.
	Writer io.Writer
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	level := parseLevel(opts.Level)
	addSource := opts.Development || level <= slog.LevelDebug
	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	b := &handlerBuilder{format: format, addSource: addSource, stdout: opts.Writer, seen: map[string]bool{}}
	if err := b.add(outputs, level); err != nil {
		return nil, err
	}
	errLevel := max(level, slog.LevelError)
	if err := b.add(opts.ErrorOutputPaths, errLevel); err != nil {
		return nil, err
	}

	switch len(b.handlers) {
	case 0:
		return NewNop(), nil
	case 1:
		return slog.New(b.handlers[0]), nil
	default:
		return slog.New(fanoutHandler(b.handlers)), nil
	}
}

// NewFromConfig creates a logger from the [logging] section. When toFile is
// set the daemon log file under log_dir receives a JSON copy of every record.
func NewFromConfig(cfg *config.Config, toFile bool) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}
	outputs := []string{"stdout"}
	if toFile && strings.TrimSpace(cfg.Paths.LogDir) != "" {
		outputs = append(outputs, cfg.LogPath())
	}
	return New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
	})
}

type handlerBuilder struct {
	format    string
	addSource bool
	stdout    io.Writer
	seen      map[string]bool
	handlers  []slog.Handler
}

func (b *handlerBuilder) add(paths []string, level slog.Level) error {
	for _, raw := range paths {
		target := strings.TrimSpace(raw)
		if target == "" || b.seen[target] {
			continue
		}
		b.seen[target] = true

		switch target {
		case "stdout", "stderr":
			var w io.Writer = os.Stderr
			if target == "stdout" {
				w = os.Stdout
				if b.stdout != nil {
					w = b.stdout
				}
			}
			if b.format == "json" {
				b.handlers = append(b.handlers, newJSONHandler(w, level, b.addSource))
			} else {
				b.handlers = append(b.handlers, newConsoleHandler(w, level, b.addSource))
			}
		default:
			file, err := openLogFile(target)
			if err != nil {
				return err
			}
			b.handlers = append(b.handlers, newJSONHandler(file, level, b.addSource))
		}
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
