package weft

import "sync/atomic"

// Downstream is the sink a Promise's producer function delivers its single
// result to. Success and Error are each expected to be called at most once
// across the pair; calling either a second time panics with ErrDoubleFire.
type Downstream[T any] interface {
	Success(value T)
	Error(err error)
}

type downstream[T any] struct {
	onSuccess func(T)
	onError   func(error)
	fired     atomic.Bool
}

func (d *downstream[T]) Success(v T) {
	if d.fired.Swap(true) {
		panic(ErrDoubleFire)
	}
	if d.onSuccess != nil {
		d.onSuccess(v)
	}
}

func (d *downstream[T]) Error(err error) {
	if d.fired.Swap(true) {
		panic(ErrDoubleFire)
	}
	if d.onError != nil {
		d.onError(err)
	}
}

// Promise is a producer of a single deferred T, delivered to a Downstream.
// A Promise does nothing on its own until driven — by Then, by an operator
// that composes it into a larger Promise, or by being returned from a
// flatMap continuation.
type Promise[T any] func(Downstream[T])

// Of returns a Promise that synchronously delivers value to whatever
// subscribes to it.
func Of[T any](value T) Promise[T] {
	return func(d Downstream[T]) { d.Success(value) }
}

// OfError returns a Promise that synchronously delivers err.
func OfError[T any](err error) Promise[T] {
	return func(d Downstream[T]) { d.Error(err) }
}

// FromCallable returns a Promise that runs fn synchronously (on the calling
// Execution's worker, i.e. inline in the current segment) and delivers its
// result or error.
func FromCallable[T any](fn func() (T, error)) Promise[T] {
	return func(d Downstream[T]) {
		v, err := fn()
		if err != nil {
			d.Error(err)
			return
		}
		d.Success(v)
	}
}

// FromAsync returns a Promise whose producer is handed the Downstream
// directly, for integrating callback-based APIs. The callback may call
// Success/Error synchronously or from another goroutine entirely.
func FromAsync[T any](producer func(Downstream[T])) Promise[T] {
	return producer
}

// Blocking returns a Promise that runs fn on the current Execution's
// Controller's blocking executor (a goroutine pool, bounded only if
// WithBlockingPoolSize was set) and delivers the result back on the
// Execution's own worker, preserving segment-at-a-time execution.
func Blocking[T any](fn func() (T, error)) Promise[T] {
	return func(d Downstream[T]) {
		e := Current()
		e.subscribe(func(h *StreamHandle) {
			chain := e.allInterceptors()
			go func() {
				e.controller.acquireBlockingSlot()
				defer e.controller.releaseBlockingSlot()

				var (
					result T
					err    error
				)
				func() {
					defer func() {
						if r := recover(); r != nil {
							err = &UserError{Execution: e, Cause: asError(r)}
						}
					}()
					runWithInterceptors(chain, ExecBlocking, func() {
						result, err = fn()
					})
				}()

				h.Complete(func() {
					if err != nil {
						d.Error(err)
						return
					}
					d.Success(result)
				})
			}()
		})
	}
}

// subscribePromise drives p on e, reserving a stream position so that
// whatever happens as a result of p's delivery (onSuccess/onError) is
// ordered correctly relative to the rest of e's segment stream, whether p
// delivers synchronously or from another goroutine later.
func subscribePromise[T any](e *Execution, p Promise[T], onSuccess func(T), onError func(error)) {
	e.subscribe(func(h *StreamHandle) {
		d := &downstream[T]{
			onSuccess: func(v T) {
				h.Complete(func() {
					if onSuccess != nil {
						onSuccess(v)
					}
				})
			},
			onError: func(err error) {
				h.Complete(func() {
					if onError != nil {
						onError(err)
					} else {
						panic(&UserError{Execution: e, Cause: err})
					}
				})
			},
		}
		p(d)
	})
}

// Then subscribes to p on the calling goroutine's bound Execution, running
// onSuccess once a value is delivered. An error delivered with no onError
// registered anywhere in the chain surfaces as a *UserError panic in the
// reserved segment, routed to the Execution's onError like any other
// unhandled user error.
func Then[T any](p Promise[T], onSuccess func(T)) {
	subscribePromise(Current(), p, onSuccess, nil)
}

// Map transforms a successful value, leaving errors untouched.
func Map[T, U any](p Promise[T], fn func(T) U) Promise[U] {
	return func(d Downstream[U]) {
		p(&downstream[T]{
			onSuccess: func(v T) { d.Success(fn(v)) },
			onError:   func(err error) { d.Error(err) },
		})
	}
}

// FlatMap transforms a successful value into another Promise, chaining it
// in sequence. The returned Promise's own delivery happens once the inner
// Promise settles.
func FlatMap[T, U any](p Promise[T], fn func(T) Promise[U]) Promise[U] {
	return func(d Downstream[U]) {
		p(&downstream[T]{
			onSuccess: func(v T) { fn(v)(d) },
			onError:   func(err error) { d.Error(err) },
		})
	}
}

// MapError transforms a failing Promise's error, leaving successes
// untouched.
func MapError[T any](p Promise[T], fn func(error) error) Promise[T] {
	return func(d Downstream[T]) {
		p(&downstream[T]{
			onSuccess: func(v T) { d.Success(v) },
			onError:   func(err error) { d.Error(fn(err)) },
		})
	}
}

// OnError recovers a failing Promise into a successful one by producing a
// substitute value from the error.
func OnError[T any](p Promise[T], fn func(error) T) Promise[T] {
	return func(d Downstream[T]) {
		p(&downstream[T]{
			onSuccess: func(v T) { d.Success(v) },
			onError:   func(err error) { d.Success(fn(err)) },
		})
	}
}

// Wrap lets fn observe and replace the Downstream presented to p, e.g. to
// add timing or retries around delivery.
func Wrap[T any](p Promise[T], fn func(Downstream[T]) Downstream[T]) Promise[T] {
	return func(d Downstream[T]) { p(fn(d)) }
}

// Wiretap calls fn with every outcome (value or error) a Promise produces,
// without altering what gets delivered downstream. fn panics are recovered
// and discarded rather than propagated, since a wiretap observer must never
// change the outcome it is observing.
func Wiretap[T any](p Promise[T], fn func(T, error)) Promise[T] {
	return func(d Downstream[T]) {
		p(&downstream[T]{
			onSuccess: func(v T) {
				safeObserve(func() { fn(v, nil) })
				d.Success(v)
			},
			onError: func(err error) {
				safeObserve(func() { fn(*new(T), err) })
				d.Error(err)
			},
		})
	}
}

func safeObserve(fn func()) {
	defer func() { recover() }()
	fn()
}

// Throttled routes a Promise's delivery through t, queueing if t is
// already at capacity and releasing t's slot as soon as the Promise
// settles.
func Throttled[T any](p Promise[T], t *Throttle) Promise[T] {
	return func(d Downstream[T]) {
		t.acquire(func() {
			p(&downstream[T]{
				onSuccess: func(v T) {
					t.release()
					d.Success(v)
				},
				onError: func(err error) {
					t.release()
					d.Error(err)
				},
			})
		})
	}
}
