package weft

import "sync"

// ParallelResult pairs a key with the outcome of one Promise run in
// Parallel.
type ParallelResult[K comparable, T any] struct {
	Key   K
	Value T
	Err   error
}

// Parallel runs each entry of items on a freshly started Execution of its
// own, in parallel, and delivers all results together once every entry has
// settled — one failing entry does not cancel the others. The returned
// Promise must be subscribed from a running Execution, like any other
// Promise; it never blocks that Execution's worker, since each item's work
// happens on its own Execution and the fan-in hands the combined results
// back to the caller as an infrastructure segment on its stream.
func Parallel[K comparable, T any](controller *Controller, items map[K]Promise[T]) Promise[map[K]ParallelResult[K, T]] {
	return func(d Downstream[map[K]ParallelResult[K, T]]) {
		if len(items) == 0 {
			d.Success(map[K]ParallelResult[K, T]{})
			return
		}

		caller := Current()
		results := make(map[K]ParallelResult[K, T], len(items))
		var mu sync.Mutex
		remaining := len(items)

		finish := func() {
			caller.enqueueInfra(func() {
				d.Success(results)
			})
		}

		for key, p := range items {
			key, p := key, p
			controller.Start(func() {
				subscribePromise(Current(), p, func(v T) {
					recordParallelResult(&mu, results, &remaining, key, ParallelResult[K, T]{Key: key, Value: v}, finish)
					Current().Complete()
				}, func(err error) {
					recordParallelResult(&mu, results, &remaining, key, ParallelResult[K, T]{Key: key, Err: err}, finish)
					Current().Complete()
				})
			}, nil, nil, nil)
		}
	}
}

func recordParallelResult[K comparable, T any](mu *sync.Mutex, results map[K]ParallelResult[K, T], remaining *int, key K, r ParallelResult[K, T], finish func()) {
	mu.Lock()
	results[key] = r
	*remaining--
	done := *remaining == 0
	mu.Unlock()
	if done {
		finish()
	}
}
