package session

import (
	"context"
	"sync/atomic"
)

// future is resolved exactly once. Later resolutions are ignored, so a late
// engine confirmation cannot complete an operation twice.
type future struct {
	ch       chan error
	resolved atomic.Bool
}

func newFuture() *future {
	return &future{ch: make(chan error, 1)}
}

// resolve completes the future and reports whether this call did so.
func (f *future) resolve(err error) bool {
	if f == nil || !f.resolved.CompareAndSwap(false, true) {
		return false
	}
	f.ch <- err
	return true
}

// wait blocks until the future resolves or ctx ends. Abandoning the wait
// leaves the buffered result for nobody; nothing leaks.
func (f *future) wait(ctx context.Context) error {
	select {
	case err := <-f.ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
