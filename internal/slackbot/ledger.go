package slackbot

import (
	"context"
	"sync"
)

// Ledger remembers which event ids have already been handled.
//
// FirstSight must perform the check and the insert as one step: when two
// deliveries of the same id race, exactly one of them sees true.
type Ledger interface {
	FirstSight(ctx context.Context, eventID string) (bool, error)
}

// MemoryLedger is the process-lifetime ledger. Entries are never evicted;
// the id space is bounded by the platform's retry window.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]struct{})}
}

func (l *MemoryLedger) FirstSight(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[eventID]; ok {
		return false, nil
	}
	l.seen[eventID] = struct{}{}
	return true, nil
}
