package diagnostics

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotterSavesOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diag")
	s := NewSnapshotter(dir, nil)
	s.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }

	path, err := s.Save([]byte("<html>first</html>"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "first_page_20250304_050607.html" {
		t.Fatalf("path = %q", path)
	}

	again, err := s.Save([]byte("<html>second</html>"))
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if again != path {
		t.Fatalf("second path = %q, want %q", again, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "<html>first</html>" {
		t.Fatalf("snapshot = %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestSnapshotterDisabled(t *testing.T) {
	s := NewSnapshotter("", nil)
	path, err := s.Save([]byte("body"))
	if err != nil || path != "" {
		t.Fatalf("disabled snapshotter wrote %q, %v", path, err)
	}

	var nilSnapshotter *Snapshotter
	if _, err := nilSnapshotter.Save([]byte("body")); err != nil {
		t.Fatalf("nil snapshotter: %v", err)
	}
}
