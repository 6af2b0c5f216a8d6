package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// LoadLog represents a single file-load log entry.
type LoadLog struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	SessionID  string    `json:"session_id"`
	Path       string    `json:"path"`
	DurationMs int64     `json:"duration_ms"`
	FromCache  bool      `json:"from_cache,omitempty"`
	Preload    bool      `json:"preload,omitempty"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// LoadLogger handles per-load logging.
type LoadLogger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultLoadLogger = &LoadLogger{enabled: true}

// Loads returns the default load logger.
func Loads() *LoadLogger {
	return defaultLoadLogger
}

// SetOutput sets the log output file (JSON lines, appended).
func (l *LoadLogger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables/disables human-readable console output.
func (l *LoadLogger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes a load log entry.
func (l *LoadLogger) Log(entry *LoadLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "✓"
		if !entry.Success {
			status = "✗"
		}
		cache := ""
		if entry.FromCache {
			cache = " [cached]"
		}
		pre := ""
		if entry.Preload {
			pre = " [preload]"
		}
		fmt.Printf("[load] %s %s %s %dms%s%s\n",
			status, entry.RequestID, entry.Path, entry.DurationMs, cache, pre)
		if entry.Error != "" {
			fmt.Printf("[load]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file.
func (l *LoadLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
