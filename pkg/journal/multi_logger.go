package journal

import "sync"

// MultiLogger fans events out to a set of loggers that may grow while events
// are being emitted, e.g. when a journal file is attached after startup.
type MultiLogger struct {
	mu      sync.RWMutex
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger over loggers. Nil entries are skipped
// and nested MultiLoggers are flattened.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		m.Add(l)
	}
	return m
}

// Add attaches l. Nil is ignored.
func (m *MultiLogger) Add(l Logger) {
	if l == nil {
		return
	}
	if nested, ok := l.(*MultiLogger); ok {
		if nested == m {
			return
		}
		nested.mu.RLock()
		inner := append([]Logger(nil), nested.loggers...)
		nested.mu.RUnlock()

		m.mu.Lock()
		m.loggers = append(m.loggers, inner...)
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.loggers = append(m.loggers, l)
	m.mu.Unlock()
}

// Len returns the number of attached loggers.
func (m *MultiLogger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.loggers)
}

// Log sends event to every attached logger in the order they were added.
func (m *MultiLogger) Log(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
