package journal

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// FileLogger appends CBOR-encoded events to a journal file.
// Each event is encoded in full before it is written, so a failed encode never
// leaves a partial record behind. It is safe for concurrent use.
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
	sync   bool

	logger   *slog.Logger
	failures atomic.Uint64
}

// FileLoggerOption configures a FileLogger.
type FileLoggerOption func(*FileLogger)

// WithErrorLogger reports write failures to logger. Defaults to slog.Default().
func WithErrorLogger(logger *slog.Logger) FileLoggerOption {
	return func(l *FileLogger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithSync flushes the file to stable storage after every event.
func WithSync(enabled bool) FileLoggerOption {
	return func(l *FileLogger) {
		l.sync = enabled
	}
}

// NewFileLogger opens path for appending, creating it with 0644 if missing.
func NewFileLogger(path string, opts ...FileLoggerOption) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l := &FileLogger{file: f, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Log appends event. Failures are reported to the error logger and counted;
// they never reach the operation that emitted the event, which has already
// committed.
func (l *FileLogger) Log(event Event) {
	data, err := EncodeEvent(event)
	if err != nil {
		l.fail(event, fmt.Errorf("encode: %w", err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.fail(event, os.ErrClosed)
		return
	}
	if _, err := l.file.Write(data); err != nil {
		l.fail(event, fmt.Errorf("write: %w", err))
		return
	}
	if l.sync {
		if err := l.file.Sync(); err != nil {
			l.fail(event, fmt.Errorf("sync: %w", err))
		}
	}
}

// Failures returns how many events could not be journaled.
func (l *FileLogger) Failures() uint64 {
	return l.failures.Load()
}

// Path returns the journal file path.
func (l *FileLogger) Path() string {
	return l.file.Name()
}

func (l *FileLogger) fail(event Event, err error) {
	l.failures.Add(1)
	l.logger.Error("journal write failed",
		"path", l.file.Name(),
		"kind", event.Kind.String(),
		"event_id", event.ID.String(),
		"token_id", event.TokenID.String(),
		"error", err)
}

// Close closes the file. Later events are counted as failures.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
