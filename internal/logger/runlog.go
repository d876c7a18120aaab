package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RunLog is the per-run audit file. It is truncated when opened so every run
// starts with an empty log.
type RunLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
	err  error
}

func OpenRunLog(path string) (*RunLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	return &RunLog{path: path, f: f}, nil
}

func (l *RunLog) Path() string { return l.path }

// Write records the first failure for Err.
func (l *RunLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		l.fail(os.ErrClosed)
		return 0, os.ErrClosed
	}
	n, err := l.f.Write(p)
	if err != nil {
		l.fail(err)
	}
	return n, err
}

func (l *RunLog) fail(err error) {
	if l.err == nil {
		l.err = fmt.Errorf("write run log %s: %w", l.path, err)
	}
}

// Err returns the first write failure, or nil while the log is intact.
func (l *RunLog) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *RunLog) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.f.Sync()
}

func (l *RunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("close run log: %w", err)
	}
	return nil
}
