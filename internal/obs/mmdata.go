// Package obs writes the current reading to a small text file that
// streaming software (OBS text sources and similar) polls.
package obs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/allbin/bkmeter/session"
)

// DefaultFile is used when the configured path is a directory.
const DefaultFile = "mmdata.txt"

// FileSink writes two lines per cycle: the reading and the mode line.
// Each write goes to a temporary file that is renamed over the target, so
// readers never see a half written file.
type FileSink struct {
	mu   sync.Mutex
	path string
	last string
}

// NewFileSink returns a sink for path. A directory gets DefaultFile inside it.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output file path is empty")
	}
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		path = filepath.Join(path, DefaultFile)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &FileSink{path: path}, nil
}

// Path returns the file being written.
func (s *FileSink) Path() string { return s.path }

// Publish implements session.Sink. Unchanged content is not rewritten.
func (s *FileSink) Publish(_ context.Context, c session.Cycle) error {
	content := Render(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if content == s.last {
		return nil
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	s.last = content
	return nil
}

// Render formats a cycle the way the overlay shows it.
func Render(c session.Cycle) string {
	line2 := c.ModeLine
	if c.Paused {
		line2 += " (paused)"
	}
	return c.Reading.Value + "\n" + line2 + "\n"
}

var _ session.Sink = (*FileSink)(nil)
