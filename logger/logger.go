// Package logger owns the process-wide structured logger and the per-session
// raw stream logs.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zhubert/plural-agent/paths"
)

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	mu       sync.Mutex
	logPath  string
	initDone bool
)

// DefaultLogPath returns the default log file path for the engine.
func DefaultLogPath() (string, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agent.log"), nil
}

// StreamLogPath returns the path that receives raw agent output lines for a session.
func StreamLogPath(sessionID string) (string, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("stream-%s.log", sessionID)), nil
}

// SetDebug enables or disables debug level logging
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// SetQuiet raises the level so only warnings and errors are written.
func SetQuiet() {
	mu.Lock()
	defer mu.Unlock()
	levelVar.Set(slog.LevelWarn)
}

// Path returns the file currently receiving log output, or "" before init.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Init initializes the logger with a custom path. Calling it again after a
// successful init is a no-op until Reset.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}
	return openLocked(path)
}

// openLocked opens path for appending and installs the root logger.
// Caller must hold mu.
func openLocked(path string) error {
	if path != os.DevNull {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logPath = path
	logFile = f
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	initDone = true

	root.Info("logger initialized", "path", path)
	return nil
}

// ensureInit falls back to the default path on first use.
// Caller must hold mu.
func ensureInit() {
	if initDone {
		return
	}

	defaultPath, err := DefaultLogPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to get default log path: %v\n", err)
		return
	}
	if err := openLocked(defaultPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// Get returns the root logger instance.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()

	if root == nil {
		return slog.Default()
	}
	return root
}

// WithSession returns a logger with the session ID attached.
//
// Example:
//
//	log := logger.WithSession(sess.ID())
//	log.Info("turn started", "resume", true)
//	// Output: level=INFO msg="turn started" sessionID=abc123 resume=true
func WithSession(sessionID string) *slog.Logger {
	return Get().With("sessionID", sessionID)
}

// WithComponent returns a logger with the component name attached.
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Close closes the log file
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset resets the logger state, allowing reinitialization.
// This is primarily for testing purposes.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initDone = false
	logPath = ""
	root = nil
	levelVar = new(slog.LevelVar)
}

// StreamLog appends raw agent output lines to a per-session file.
type StreamLog struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// OpenStreamLog opens (or creates) the stream log for sessionID.
func OpenStreamLog(sessionID string) (*StreamLog, error) {
	path, err := StreamLogPath(sessionID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &StreamLog{w: f}, nil
}

// NewStreamLog wraps an arbitrary writer. Used by tests and by callers that
// want stream lines somewhere other than the logs dir.
func NewStreamLog(w io.WriteCloser) *StreamLog {
	return &StreamLog{w: w}
}

// WriteLine appends one line, adding the newline if it is missing.
// A nil receiver discards the line.
func (s *StreamLog) WriteLine(line string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, _ = io.WriteString(s.w, line)
}

// Close releases the underlying file.
func (s *StreamLog) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}

// ClearLogs removes the engine log and every stream log from the logs dir.
func ClearLogs() (int, error) {
	defaultPath, err := DefaultLogPath()
	if err != nil {
		return 0, fmt.Errorf("failed to get default log path: %w", err)
	}

	targets := []string{defaultPath}
	streamLogs, err := filepath.Glob(filepath.Join(filepath.Dir(defaultPath), "stream-*.log"))
	if err != nil {
		return 0, err
	}
	targets = append(targets, streamLogs...)

	count := 0
	for _, p := range targets {
		if err := os.Remove(p); err == nil {
			count++
		} else if !os.IsNotExist(err) {
			return count, err
		}
	}
	return count, nil
}
