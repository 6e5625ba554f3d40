package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileConfig configures a rotating log file.
type FileConfig struct {
	Path      string
	MaxSizeMB int
	MaxFiles  int
}

// RotatingFile is an io.Writer that appends to a file and rotates it once it
// grows past MaxSizeMB.
type RotatingFile struct {
	mu          sync.Mutex
	file        *os.File
	config      FileConfig
	currentSize int64
}

// OpenRotatingFile opens (or creates) the log file described by cfg.
func OpenRotatingFile(cfg FileConfig) (*RotatingFile, error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 3
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &RotatingFile{
		file:        f,
		config:      cfg,
		currentSize: stat.Size(),
	}, nil
}

// Write appends p, rotating first if the size limit was reached.
func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxBytes := int64(r.config.MaxSizeMB) * 1024 * 1024
	if r.currentSize >= maxBytes {
		if err := r.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	if r.file == nil {
		return 0, os.ErrClosed
	}

	n, err := r.file.Write(p)
	r.currentSize += int64(n)
	return n, err
}

// Close closes the underlying file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// rotate shifts fusilli.log -> fusilli.log.1 -> fusilli.log.2 ..., dropping
// the oldest once MaxFiles rotated files exist.
func (r *RotatingFile) rotate() error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}

	basePath := r.config.Path
	for i := r.config.MaxFiles; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", basePath, i)
		if i == r.config.MaxFiles {
			os.Remove(oldPath)
			continue
		}
		os.Rename(oldPath, fmt.Sprintf("%s.%d", basePath, i+1))
	}

	if err := os.Rename(basePath, basePath+".1"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	f, err := os.OpenFile(basePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open new log file: %w", err)
	}

	r.file = f
	r.currentSize = 0
	return nil
}
