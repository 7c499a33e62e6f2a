package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"dubber/internal/logging"
	"dubber/internal/services"
)

// Manager allocates scratch directories beneath a root.
type Manager struct {
	root         string
	minFreeBytes uint64
	logger       *slog.Logger
	statfs       func(path string) (uint64, error)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithMinFreeMB rejects acquisitions when the root has less free space.
func WithMinFreeMB(mb int) Option {
	return func(m *Manager) {
		if mb > 0 {
			m.minFreeBytes = uint64(mb) * 1024 * 1024
		}
	}
}

// WithLogger sets the logger used for cleanup reports.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.NewComponentLogger(logger, "workspace")
	}
}

// WithStatfs overrides the free-space probe (useful for tests).
func WithStatfs(fn func(path string) (uint64, error)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.statfs = fn
		}
	}
}

// NewManager returns a manager rooted at root.
func NewManager(root string, opts ...Option) *Manager {
	m := &Manager{
		root:   strings.TrimSpace(root),
		logger: logging.NewComponentLogger(nil, "workspace"),
		statfs: freeBytes,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the scratch root.
func (m *Manager) Root() string {
	return m.root
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Acquire creates a scratch directory for one processor invocation. The
// label (usually "<stage>-<job id>") only makes the directory name readable.
func (m *Manager) Acquire(ctx context.Context, label string) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "acquire", "scratch root not configured", nil)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "acquire", "create scratch root", err)
	}
	if err := unix.Access(m.root, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "acquire",
			fmt.Sprintf("scratch root %s not writable", m.root), err)
	}
	if m.minFreeBytes > 0 {
		free, err := m.statfs(m.root)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "workspace", "acquire", "probe free space", err)
		}
		if free < m.minFreeBytes {
			return nil, services.Wrap(services.ErrTransient, "workspace", "acquire",
				fmt.Sprintf("scratch root has %d MiB free, need %d MiB", free/(1024*1024), m.minFreeBytes/(1024*1024)), nil)
		}
	}

	prefix := strings.Trim(unsafeChars.ReplaceAllString(label, "_"), "_")
	if prefix == "" {
		prefix = "stage"
	}
	dir, err := os.MkdirTemp(m.root, prefix+"-")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workspace", "acquire", "create scratch directory", err)
	}
	return &Workspace{dir: dir}, nil
}

// CleanStale removes scratch directories older than maxAge and returns how
// many were removed. Failures are logged and skipped.
func (m *Manager) CleanStale(maxAge time.Duration) int {
	if m.root == "" {
		return 0
	}
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(m.logger, "failed to read scratch root", "workspace_scan_failed",
				logging.String("path", m.root),
				logging.Error(err),
				logging.Hint("check scratch_dir permissions"),
				logging.Impact("disk space not reclaimed"),
			)
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(m.root, entry.Name())
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			logging.WarnWithContext(m.logger, "failed to remove stale scratch directory", "workspace_cleanup_failed",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.Hint("check scratch_dir permissions"),
				logging.Impact("disk space not reclaimed"),
			)
			continue
		}
		removed++
		m.logger.Info("removed stale scratch directory",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.Event("workspace_cleanup"),
		)
	}
	return removed
}

// Workspace is one scratch directory.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// Dir returns the scratch directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns a file path inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Cleanup removes the workspace. Repeated calls return the first result.
func (w *Workspace) Cleanup() error {
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil {
			w.err = fmt.Errorf("remove scratch directory %s: %w", w.dir, err)
		}
	})
	return w.err
}

func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
