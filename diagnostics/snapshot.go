// Package diagnostics writes the one-time debug snapshot of the first
// listing page a process fetches.
package diagnostics

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Snapshotter saves at most one page body per instance.
type Snapshotter struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	once sync.Once
	path string
	err  error
}

// NewSnapshotter writes under dir. An empty dir disables snapshots.
func NewSnapshotter(dir string, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{
		dir:    dir,
		logger: logger.With("component", "diagnostics"),
		now:    time.Now,
	}
}

// Save writes body to first_page_<timestamp>.html the first time it is
// called and does nothing afterwards. It returns the written path.
func (s *Snapshotter) Save(body []byte) (string, error) {
	if s == nil || s.dir == "" {
		return "", nil
	}
	s.once.Do(func() {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			s.err = fmt.Errorf("create diagnostics dir: %w", err)
			return
		}
		name := fmt.Sprintf("first_page_%s.html", s.now().Format("20060102_150405"))
		path := filepath.Join(s.dir, name)
		if err := os.WriteFile(path, body, 0o644); err != nil {
			s.err = fmt.Errorf("write snapshot: %w", err)
			return
		}
		s.path = path
		s.logger.Info("saved first page snapshot", slog.String("path", path), slog.Int("bytes", len(body)))
	})
	return s.path, s.err
}
