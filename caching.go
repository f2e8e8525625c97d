package weft

import (
	"sync"
	"sync/atomic"
)

// cachingPromise subscribes its source Promise at most once, fanning the
// single resulting value or error out to every caller across however many
// Executions asked for it — callers that arrive after the source has
// settled get the cached outcome immediately, still delivered through
// their own Execution's stream so ordering relative to the rest of their
// segment is preserved.
type cachingPromise[T any] struct {
	mu      sync.Mutex
	source  Promise[T]
	started bool
	settled bool
	value   T
	err     error
	waiters []func()

	// drainRequested/draining guard the waiter flush. settle bumps
	// drainRequested and calls drain; draining admits one pass at a time,
	// and a pass clears drainRequested before grabbing the waiter batch
	// and, after flushing and clearing draining, loops again if it is
	// non-zero. Waiters never bump it: request appends to waiters only
	// while the source is unsettled (under mu) and delivers directly once
	// it has settled, so no waiter is left behind by a finished pass.
	drainRequested atomic.Int64
	draining       atomic.Bool
}

// Cache returns a Promise that runs source exactly once, regardless of how
// many Executions subscribe to the returned Promise or when.
func Cache[T any](source Promise[T]) Promise[T] {
	c := &cachingPromise[T]{source: source}
	return func(d Downstream[T]) {
		e := Current()
		e.subscribe(func(h *StreamHandle) {
			c.request(func() {
				h.Complete(func() {
					if c.err != nil {
						d.Error(c.err)
						return
					}
					d.Success(c.value)
				})
			})
		})
	}
}

func (c *cachingPromise[T]) request(deliver func()) {
	c.mu.Lock()
	if c.settled {
		c.mu.Unlock()
		deliver()
		return
	}
	c.waiters = append(c.waiters, deliver)
	needsStart := !c.started
	c.started = true
	c.mu.Unlock()

	if needsStart {
		c.source(&downstream[T]{
			onSuccess: func(v T) { c.settle(v, nil) },
			onError:   func(err error) { c.settle(*new(T), err) },
		})
	}
}

func (c *cachingPromise[T]) settle(v T, err error) {
	c.mu.Lock()
	c.settled = true
	c.value, c.err = v, err
	c.mu.Unlock()
	c.drainRequested.Add(1)
	c.drain()
}

func (c *cachingPromise[T]) drain() {
	if !c.draining.CompareAndSwap(false, true) {
		return
	}
	for {
		c.drainRequested.Store(0)
		c.mu.Lock()
		batch := c.waiters
		c.waiters = nil
		c.mu.Unlock()

		for _, w := range batch {
			w()
		}

		c.draining.Store(false)
		if c.drainRequested.Load() == 0 {
			return
		}
		if !c.draining.CompareAndSwap(false, true) {
			return
		}
	}
}
