package slackbot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemoryLedgerFirstSightIsExclusive(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.FirstSight(ctx, "Ev1"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
	if ok, _ := l.FirstSight(ctx, "Ev2"); !ok {
		t.Fatalf("a new id must be a first sight")
	}
}
