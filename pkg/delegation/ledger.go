package delegation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	defaultReplayTTL        = 24 * time.Hour
	defaultReplayMaxEntries = 8192
)

var errEmptyReplayKey = errors.New("delegation: replay key is required")

// ReplayLedger remembers accepted requests.
// Claim returns true the first time a key is seen within ttl. Release forgets
// a claimed key so the request can be presented again.
type ReplayLedger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryReplayLedger is an in-process ReplayLedger with a capacity bound.
// When full, the entry closest to expiry is evicted.
type MemoryReplayLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	entries    map[string]time.Time

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewMemoryReplayLedger creates a ledger with the given default ttl and capacity.
// Non-positive values select the defaults.
func NewMemoryReplayLedger(defaultTTL time.Duration, maxEntries int) *MemoryReplayLedger {
	if defaultTTL <= 0 {
		defaultTTL = defaultReplayTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultReplayMaxEntries
	}
	return &MemoryReplayLedger{
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		entries:    make(map[string]time.Time),
		Now:        time.Now,
	}
}

// Claim records key unless it is already live.
func (l *MemoryReplayLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, errEmptyReplayKey
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)
	if _, live := l.entries[key]; live {
		return false, nil
	}
	for len(l.entries) >= l.maxEntries {
		l.evictLocked()
	}
	l.entries[key] = now.Add(ttl)
	return true, nil
}

// Release forgets key. Unknown keys are ignored.
func (l *MemoryReplayLedger) Release(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errEmptyReplayKey
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

// Len returns the number of live entries.
func (l *MemoryReplayLedger) Len() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)
	return len(l.entries)
}

func (l *MemoryReplayLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryReplayLedger) pruneLocked(now time.Time) {
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
		}
	}
}

func (l *MemoryReplayLedger) evictLocked() {
	var (
		oldestKey    string
		oldestExpiry time.Time
	)
	for key, expiry := range l.entries {
		if oldestKey == "" || expiry.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = expiry
		}
	}
	delete(l.entries, oldestKey)
}

// Compile-time interface satisfaction check.
var _ ReplayLedger = (*MemoryReplayLedger)(nil)
