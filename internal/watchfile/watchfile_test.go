package watchfile

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "watched.yaml")
	if err := os.WriteFile(file, []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var reloads atomic.Int32
	w, err := New(file, 10*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	if err := os.WriteFile(file, []byte("b"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return reloads.Load() >= 1 }, "reload after write")

	before := reloads.Load()
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write other: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if reloads.Load() != before {
		t.Fatalf("expected sibling file changes to be ignored")
	}

	if err := os.Remove(file); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, func() bool { return reloads.Load() > before }, "reload after removal")
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := New(filepath.Join(dir, "missing.yaml"), time.Millisecond, func() error { return nil }, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNewFailsForMissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope", "file.yaml"), time.Millisecond, func() error { return nil }, nil); err == nil {
		t.Fatalf("expected error when the parent directory does not exist")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", msg)
}
