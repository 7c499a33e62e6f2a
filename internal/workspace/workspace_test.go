package workspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dubber/internal/services"
	"dubber/internal/workspace"
)

func TestAcquireAndCleanup(t *testing.T) {
	root := filepath.Join(t.TempDir(), "scratch")
	manager := workspace.NewManager(root)

	ws, err := manager.Acquire(context.Background(), "transcribe-job/1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(ws.Dir()), "transcribe-job_1-") {
		t.Fatalf("unexpected workspace name %q", ws.Dir())
	}
	file := ws.Path("audio.wav")
	if filepath.Dir(file) != ws.Dir() {
		t.Fatalf("path escaped workspace: %s", file)
	}
	if err := os.WriteFile(file, []byte("pcm"), 0o644); err != nil {
		t.Fatalf("write scratch file: %v", err)
	}

	if err := ws.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err=%v", err)
	}
	if err := ws.Cleanup(); err != nil {
		t.Fatalf("second Cleanup should be a no-op, got %v", err)
	}
}

func TestAcquireGivesDistinctDirectories(t *testing.T) {
	manager := workspace.NewManager(t.TempDir())
	a, err := manager.Acquire(context.Background(), "align")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	b, err := manager.Acquire(context.Background(), "align")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if a.Dir() == b.Dir() {
		t.Fatal("expected distinct directories per acquisition")
	}
}

func TestAcquireRejectsLowFreeSpace(t *testing.T) {
	manager := workspace.NewManager(t.TempDir(),
		workspace.WithMinFreeMB(100),
		workspace.WithStatfs(func(string) (uint64, error) { return 10 * 1024 * 1024, nil }),
	)
	_, err := manager.Acquire(context.Background(), "synthesize")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	entries, _ := os.ReadDir(manager.Root())
	if len(entries) != 0 {
		t.Fatalf("no directory should be created, got %d entries", len(entries))
	}
}

func TestAcquireRequiresRoot(t *testing.T) {
	_, err := workspace.NewManager("").Acquire(context.Background(), "x")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	root := t.TempDir()
	manager := workspace.NewManager(root)
	oldDir := filepath.Join(root, "old")
	newDir := filepath.Join(root, "new")
	for _, dir := range []string{oldDir, newDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldDir, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if removed := manager.CleanStale(24 * time.Hour); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatalf("expected old dir removed, stat err=%v", err)
	}
	if _, err := os.Stat(newDir); err != nil {
		t.Fatalf("expected new dir kept: %v", err)
	}
}
