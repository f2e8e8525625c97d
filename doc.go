// Package weft is a cooperative, single-threaded execution runtime for
// request-shaped asynchronous work.
//
// An Execution runs on exactly one worker at a time and processes its
// segments — plain functions — one at a time, in FIFO order, never
// concurrently with itself. Asynchronous work (a Promise) reserves a
// position in an Execution's segment stream via subscribe, so that
// whichever goroutine eventually delivers the result, the continuation
// still runs in its correct place in that Execution's timeline.
//
// Promise[T] composes the usual way: Map, FlatMap, MapError, OnError,
// Wiretap, Throttled. Cache turns any Promise into a single-fire, many
// subscriber value shared safely across Executions. Parallel fans a batch
// of Promises out across fresh Executions and fans their results back in.
package weft
