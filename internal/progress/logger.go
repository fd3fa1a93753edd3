// Package progress provides the per-frame error log and the terminal
// progress display used by the compression pipeline.
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrorEntry is one logged frame failure.
type ErrorEntry struct {
	FrameIndex uint32
	Source     string
	Cause      string
	Timestamp  time.Time
}

// ErrorLogger appends frame failures to a log file and keeps them in
// memory for the end-of-run summary.
type ErrorLogger struct {
	mu      sync.Mutex
	logFile string
	entries []ErrorEntry
	file    *os.File
}

// NewErrorLogger opens (or creates) the log file for appending. An
// empty path disables persistence; entries are still collected.
func NewErrorLogger(logFile string) (*ErrorLogger, error) {
	l := &ErrorLogger{logFile: logFile}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, fmt.Errorf("could not create log directory: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		l.file = f
	}
	return l, nil
}

// Log records a failure for a frame.
func (l *ErrorLogger) Log(frameIndex uint32, source, cause string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := ErrorEntry{
		FrameIndex: frameIndex,
		Source:     source,
		Cause:      cause,
		Timestamp:  time.Now(),
	}
	l.entries = append(l.entries, entry)

	if l.file != nil {
		line := fmt.Sprintf("%s | frame %06d | %s | %s\n",
			entry.Timestamp.Format(time.RFC3339), frameIndex, filepath.Base(source), cause)
		l.file.WriteString(line)
	}
}

// Count returns the number of logged failures.
func (l *ErrorLogger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Summary describes the log state for the final report.
func (l *ErrorLogger) Summary() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return "No errors"
	}
	return fmt.Sprintf("%d errors logged to %s", len(l.entries), l.logFile)
}

// Close closes the underlying file.
func (l *ErrorLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
