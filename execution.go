package weft

import (
	"log/slog"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// Execution is a cooperative, single-threaded unit of work. At most one of
// its segments runs at any instant, always on the worker it was started
// on. Everything hanging off an Execution (its stream, its
// registry overlay, its hooks) is only ever touched from inside a running
// segment, which is what lets the rest of the runtime skip locking around
// them.
type Execution struct {
	id         ulid.ULID
	worker     *worker
	controller *Controller
	stream     *stream
	overlay    *Registry

	interceptors []Interceptor

	// registryInterceptors is a snapshot of GetAll[Interceptor](e.overlay)
	// taken once in Controller.Start, after registryInit has run. Registry
	// interceptors are scoped to what was registered at Execution
	// construction time — a later Put must not retroactively change which
	// interceptors apply to a running Execution.
	registryInterceptors []Interceptor

	onError    func(error)
	onComplete func()
	closeHooks []func()

	draining atomic.Bool
	done     atomic.Bool

	logger *slog.Logger
}

// ID returns the Execution's lexically-sortable, time-ordered identifier.
func (e *Execution) ID() string { return e.id.String() }

// Registry returns the Execution's current overlay registry.
func (e *Execution) Registry() *Registry { return e.overlay }

// Put folds values into the Execution's overlay registry. Despite Registry
// itself being immutable, Put gives callers a mutable overlay: each call
// swaps e.overlay for a freshly joined leaf, so observers holding an
// *Execution (rather than a stale *Registry) always see the latest values.
func (e *Execution) Put(values ...any) {
	e.overlay = e.overlay.With(values...)
}

// OnClose registers fn to run, in registration order, after onComplete has
// run and the Execution has reached done=true. Each hook runs in its own
// recover-and-log frame so a panicking hook can't prevent the rest from
// running.
func (e *Execution) OnClose(fn func()) {
	if fn == nil {
		panic(ErrNilOperation)
	}
	e.closeHooks = append(e.closeHooks, fn)
}

// AddInterceptor appends an ad-hoc interceptor, consulted after any global
// and registry-scoped interceptors.
func (e *Execution) AddInterceptor(i Interceptor) {
	e.interceptors = append(e.interceptors, i)
}

func (e *Execution) allInterceptors() []Interceptor {
	out := append([]Interceptor(nil), globalInterceptors()...)
	out = append(out, e.registryInterceptors...)
	out = append(out, e.interceptors...)
	return out
}

// subscribe reserves a nested position in the Execution's segment stream
// and synchronously hands the caller a StreamHandle to enqueue into it. See
// stream.subscribe for the ordering guarantee this provides.
func (e *Execution) subscribe(consumer func(*StreamHandle)) *StreamHandle {
	return e.stream.subscribe(func(h *StreamHandle) {
		h.onEnqueue = e.requestDrain
		consumer(h)
	})
}

// enqueueUser schedules fn as a user segment on the Execution's current
// event, to be run through the interceptor pipeline by the drain loop.
func (e *Execution) enqueueUser(fn func()) {
	if fn == nil {
		panic(ErrNilOperation)
	}
	e.stream.pushUser(fn)
	e.requestDrain()
}

// enqueueInfra schedules fn as infrastructure work: not intercepted, its
// panics logged and swallowed rather than routed to onError.
func (e *Execution) enqueueInfra(fn func()) {
	if fn == nil {
		panic(ErrNilOperation)
	}
	e.stream.pushInfra(fn)
	e.requestDrain()
}

// requestDrain asks the owning worker to drain this Execution, unless it is
// already done. The worker coalesces requests that are still pending; a
// request made while a drain is running queues one more drain, and the
// running drain usually picks up the new segment itself before that one
// starts.
func (e *Execution) requestDrain() {
	if e.done.Load() {
		return
	}
	e.worker.scheduleDrain(e)
}

// drain implements the five-step drain algorithm:
//  1. If already draining (re-entrant call from within a running segment),
//     return immediately — the active drain will pick up the new work.
//  2. Mark draining.
//  3. Repeatedly pop and run the next segment, through the interceptor
//     pipeline for user segments, until the stream is empty.
//  4. If the stream came up empty because it collapsed all the way back to
//     its (now empty) root event — as opposed to holding position on an
//     open async reservation that simply hasn't delivered yet — the
//     Execution has no further work coming and completes, right where that
//     condition actually becomes true rather than via a segment that would
//     have to guess its own position in the queue ahead of time.
//  5. Clear draining, then reschedule if the head event gained work before
//     draining was cleared (a segment enqueued from another thread between
//     the last pop and the unmark).
func (e *Execution) drain() {
	if !e.draining.CompareAndSwap(false, true) {
		return
	}

	bindCurrent(e)
	for {
		seg, ok := e.stream.next()
		if !ok {
			break
		}
		e.runSegment(seg)
		if e.done.Load() {
			break
		}
	}
	if !e.done.Load() && e.stream.atRootAndEmpty() {
		e.Complete()
	}
	unbindCurrent()

	e.draining.Store(false)

	e.stream.mu.Lock()
	head := e.stream.head
	e.stream.mu.Unlock()
	if !e.done.Load() && !head.isEmpty() {
		e.worker.scheduleDrain(e)
	}
}

func (e *Execution) runSegment(seg segment) {
	defer func() {
		if r := recover(); r != nil {
			e.handleSegmentPanic(seg.kind, r)
		}
	}()

	if seg.kind == segmentInfra {
		seg.run()
		return
	}

	runWithInterceptors(e.allInterceptors(), ExecCompute, seg.run)
}

func (e *Execution) handleSegmentPanic(kind segmentKind, r any) {
	if kind == segmentInfra {
		e.logger.Error("infrastructure segment panicked", "execution", e.ID(), "error", asError(r))
		return
	}
	err := &UserError{Execution: e, Cause: asError(r)}
	if e.onError != nil {
		e.safeCall(func() { e.onError(err) })
	} else {
		e.logger.Error("unhandled user error", "execution", e.ID(), "error", err)
	}
}

func (e *Execution) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panicked", "execution", e.ID(), "error", asError(r))
		}
	}()
	fn()
}

// Complete runs onComplete (if set) and then every close hook in
// registration order, each under its own recover, and marks the Execution
// done. drain calls it automatically once the segment stream runs durably
// empty; callers that need done (and therefore close hooks) to fire earlier
// — e.g. right after a response is written — may also call it explicitly
// from within a running segment on this Execution's own worker. Either way
// it only takes effect once: a later call, automatic or explicit, is a
// no-op.
func (e *Execution) Complete() {
	if e.done.Swap(true) {
		return
	}
	if e.onComplete != nil {
		e.safeCall(e.onComplete)
	}
	for _, hook := range e.closeHooks {
		h := hook
		e.safeCall(h)
	}
	e.stream.close()
}
