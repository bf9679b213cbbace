package auditlog

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps the chain in process memory. Used by tests and by
// threatd when no DATABASE_URL is configured.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemory returns a ledger holding only the genesis entry.
func NewMemory() *MemoryLedger {
	l := &MemoryLedger{now: time.Now}
	l.entries = []Entry{genesis(l.now())}
	return l
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, r Record) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := link(&l.entries[len(l.entries)-1], r, l.now())
	if err != nil {
		return nil, err
	}
	l.entries = append(l.entries, e)
	return &e, nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, seq int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq < 0 || seq >= len(l.entries) {
		return nil, ErrNotFound
	}
	e := l.entries[seq]
	return &e, nil
}

// Recent implements Ledger.
func (l *MemoryLedger) Recent(_ context.Context, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Ledger.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prev *Entry
	for i := range l.entries {
		curr := &l.entries[i]
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Head implements Ledger.
func (l *MemoryLedger) Head(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}
