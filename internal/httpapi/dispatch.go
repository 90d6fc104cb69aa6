package httpapi

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/you/echo-relay/internal/metrics"
)

// ErrDispatcherClosed is returned by Go once Drain has started.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher runs work accepted by a handler after the response is written.
// Jobs get a context detached from the request, bounded by the job timeout
// and cancelled when a drain gives up.
type Dispatcher struct {
	timeout time.Duration
	metrics *metrics.Metrics

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, m *metrics.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{timeout: timeout, metrics: m, base: base, cancel: cancel}
}

// Go schedules fn. It never blocks the caller.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	d.metrics.AddInflight(1)
	go func() {
		defer d.wg.Done()
		defer d.metrics.AddInflight(-1)
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("dispatch: %s panicked: %v", name, rec)
			}
		}()
		ctx, cancel := context.WithTimeout(d.base, d.timeout)
		defer cancel()
		fn(ctx)
	}()
	return nil
}

// Drain stops accepting jobs and waits for running ones. When ctx expires
// first, running jobs are cancelled and ctx's error is returned.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
