package scriptwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestChangesReportsWriteToWatchedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.js")
	if err := os.WriteFile(path, []byte("print('hi')"), 0o644); err != nil {
		t.Fatalf("write initial file: %v", err)
	}

	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	changes := w.Changes()

	if err := os.WriteFile(path, []byte("print('bye')"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	select {
	case got := <-changes:
		if got != path {
			t.Fatalf("expected change for %s, got %s", path, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a change event after write")
	}
}
