package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxLogSize is the maximum size of a single log file (10MB)
	DefaultMaxLogSize = 10 * 1024 * 1024

	// DefaultMaxLogFiles is the maximum number of log files to keep
	DefaultMaxLogFiles = 10

	filePrefix = "hardnested-bot-"
)

// RotatingWriter writes log records to timestamped files in a directory,
// starting a new file once the current one reaches maxSize.
type RotatingWriter struct {
	dir      string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	current *os.File
	written int64
}

// NewRotatingWriter creates the directory if needed and opens the first file.
func NewRotatingWriter(dir string) (*RotatingWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		dir:      dir,
		maxSize:  DefaultMaxLogSize,
		maxFiles: DefaultMaxLogFiles,
	}
	if err := w.createNewFile(); err != nil {
		return nil, err
	}
	w.cleanup()

	return w, nil
}

// Write implements io.Writer. Each call is expected to be one record.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		if err := w.createNewFile(); err != nil {
			return 0, err
		}
	}

	n, err := w.current.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, err
	}

	if w.written >= w.maxSize {
		if err := w.rotate(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Rotate closes the current file and starts a new one.
func (w *RotatingWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotate()
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		err := w.current.Close()
		w.current = nil
		return err
	}
	return nil
}

// FilePath returns the current log file path.
func (w *RotatingWriter) FilePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		return w.current.Name()
	}
	return ""
}

func (w *RotatingWriter) rotate() error {
	if w.current != nil {
		if err := w.current.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
		w.current = nil
	}

	if err := w.createNewFile(); err != nil {
		return err
	}
	w.cleanup()
	return nil
}

func (w *RotatingWriter) createNewFile() error {
	timestamp := time.Now().Format("20060102-150405.000000")
	path := filepath.Join(w.dir, filePrefix+timestamp+".log")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	w.current = file
	w.written = 0
	return nil
}

// cleanup removes the oldest log files beyond maxFiles.
func (w *RotatingWriter) cleanup() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	var logFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && filepath.Ext(name) == ".log" && len(name) > len(filePrefix) && name[:len(filePrefix)] == filePrefix {
			logFiles = append(logFiles, name)
		}
	}

	// names embed the creation timestamp, so lexical order is age order
	sort.Strings(logFiles)

	for len(logFiles) > w.maxFiles {
		os.Remove(filepath.Join(w.dir, logFiles[0]))
		logFiles = logFiles[1:]
	}
}
