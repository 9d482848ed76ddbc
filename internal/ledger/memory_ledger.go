package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is an in-process Ledger used by tests and local development.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
}

// SetClock replaces the expiry clock, for tests.
func (l *MemoryLedger) SetClock(clock func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

func (l *MemoryLedger) Set(_ context.Context, key, value string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = l.clock().Add(ttl)
	}
	l.entries[key] = entry
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, key string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && l.clock().After(entry.expiresAt) {
		delete(l.entries, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (l *MemoryLedger) Delete(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}
