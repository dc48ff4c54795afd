package chatlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultOpenFiles bounds how many log files a Writer keeps open.
const DefaultOpenFiles = 32

// Writer appends lines to the daily channel logs. Open handles live in an
// LRU; evicted handles are closed.
type Writer struct {
	dir string

	mu    sync.Mutex
	files *lru.Cache[string, *os.File]
}

// NewWriter creates dir if needed. openFiles <= 0 uses DefaultOpenFiles.
func NewWriter(dir string, openFiles int) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if openFiles <= 0 {
		openFiles = DefaultOpenFiles
	}
	files, err := lru.NewWithEvict[string, *os.File](openFiles, func(_ string, f *os.File) {
		f.Close()
	})
	if err != nil {
		return nil, err
	}
	return &Writer{dir: dir, files: files}, nil
}

// Append writes one line to channel's log for the day of at.
func (w *Writer) Append(channel, sender, text string, at time.Time) error {
	name := FileName(channel, at)

	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files.Get(name)
	if !ok {
		var err error
		f, err = os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		w.files.Add(name, f)
	}
	if _, err := fmt.Fprintln(f, FormatLine(sender, text, at)); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// Close closes every open log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files.Purge()
	return nil
}
