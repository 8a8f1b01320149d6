package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	dailyPrefix = "medical-helper-"
	dailyLayout = "2006-01-02"
)

// DailyWriter appends to medical-helper-YYYY-MM-DD.log in a directory and
// switches to the next day's file on the first write after local midnight.
type DailyWriter struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	day string
	f   *os.File
}

// NewDailyWriter creates dir if needed and opens today's file.
func NewDailyWriter(dir string) (*DailyWriter, error) {
	return newDailyWriter(dir, time.Now)
}

func newDailyWriter(dir string, now func() time.Time) (*DailyWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("daily log: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("daily log: create %s: %w", dir, err)
	}
	w := &DailyWriter{dir: dir, now: now}
	if err := w.rotate(now().Format(dailyLayout)); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *DailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return 0, os.ErrClosed
	}
	if day := w.now().Format(dailyLayout); day != w.day {
		if err := w.rotate(day); err != nil {
			return 0, err
		}
	}
	return w.f.Write(p)
}

// Path is the file currently written to.
func (w *DailyWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path(w.day)
}

func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *DailyWriter) path(day string) string {
	return filepath.Join(w.dir, dailyPrefix+day+".log")
}

// rotate must be called with mu held (or before w is shared).
func (w *DailyWriter) rotate(day string) error {
	f, err := os.OpenFile(w.path(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("daily log: open: %w", err)
	}
	if w.f != nil {
		_ = w.f.Close()
	}
	w.f = f
	w.day = day
	return nil
}
