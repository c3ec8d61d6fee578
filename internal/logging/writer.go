// Package logging builds the service logger and the size-rotating file
// writer behind it.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const backupTimeFormat = "20060102-150405.000"

// RotatingWriter is an io.WriteCloser over a log file that is moved aside
// once it would exceed a size limit. Backups are named
// <base>-<timestamp><ext> next to the live file.
type RotatingWriter struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	size       int64
	maxBytes   int64
	maxBackups int
	maxAge     time.Duration
	now        func() time.Time
}

// NewRotatingWriter opens (or creates) path and its directory. A maxBackups
// or maxAgeDays of zero disables that pruning rule.
func NewRotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingWriter, error) {
	w := &RotatingWriter{
		path:       path,
		maxBytes:   int64(maxSizeMB) << 20,
		maxBackups: maxBackups,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
		now:        time.Now,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past the limit.
// A single entry larger than the limit is still written whole.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the live file. Further writes fail with os.ErrClosed.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	if err := os.Rename(w.path, w.backupName(w.now())); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotating log file: %w", err)
	}
	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

func (w *RotatingWriter) split() (dir, prefix, ext string) {
	ext = filepath.Ext(w.path)
	base := strings.TrimSuffix(filepath.Base(w.path), ext)
	if ext == "" {
		ext = ".log"
	}
	return filepath.Dir(w.path), base + "-", ext
}

func (w *RotatingWriter) backupName(t time.Time) string {
	dir, prefix, ext := w.split()
	return filepath.Join(dir, prefix+t.Format(backupTimeFormat)+ext)
}

// backups lists rotated files, oldest first. The timestamp format sorts
// lexically.
func (w *RotatingWriter) backups() []string {
	dir, prefix, ext := w.split()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	live := filepath.Base(w.path)
	var names []string
	for _, e := range entries {
		name := e.Name()
		if name != live && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			names = append(names, filepath.Join(dir, name))
		}
	}
	slices.Sort(names)
	return names
}

// prune removes backups beyond maxBackups and those older than maxAge.
// Removal errors are ignored; the next rotation retries.
func (w *RotatingWriter) prune() {
	names := w.backups()
	if w.maxBackups > 0 && len(names) > w.maxBackups {
		for _, name := range names[:len(names)-w.maxBackups] {
			os.Remove(name) //nolint:errcheck
		}
		names = names[len(names)-w.maxBackups:]
	}
	if w.maxAge <= 0 {
		return
	}
	cutoff := w.now().Add(-w.maxAge)
	for _, name := range names {
		if info, err := os.Stat(name); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(name) //nolint:errcheck
		}
	}
}
