package weft

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID extracts the numeric id the Go runtime assigns to the calling
// goroutine by parsing the header of its own stack trace. The runtime does
// not expose goroutine identity through any supported API; no third-party
// goroutine-local-storage library appears anywhere in the retrieval pack,
// so Current (spec §6) is grounded on this well-known parsing technique,
// scoped strictly to the worker-binding table below.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

var bindings sync.Map // goroutineID -> *Execution

func bindCurrent(e *Execution) {
	bindings.Store(goroutineID(), e)
}

func unbindCurrent() {
	bindings.Delete(goroutineID())
}

// boundExecution returns the Execution bound to the calling goroutine, if
// any, and whether there is one. Used by Current and CurrentOpt.
func boundExecution() (*Execution, bool) {
	v, ok := bindings.Load(goroutineID())
	if !ok {
		return nil, false
	}
	return v.(*Execution), true
}

// Current returns the Execution bound to the calling goroutine. It panics
// with ErrUnmanagedThread if called from a goroutine with no binding, i.e.
// from outside a running segment.
func Current() *Execution {
	e, ok := boundExecution()
	if !ok {
		panic(ErrUnmanagedThread)
	}
	return e
}

// CurrentOpt is like Current but returns (nil, false) instead of panicking
// when there is no binding.
func CurrentOpt() (*Execution, bool) {
	return boundExecution()
}
