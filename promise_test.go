package weft

import (
	"errors"
	"testing"
	"time"
)

func TestPromiseOfDeliversValue(t *testing.T) {
	c := newTestController(t)
	done := make(chan int, 1)

	c.Start(func() {
		Then(Of(42), func(v int) { done <- v })
	}, nil, nil, nil)

	select {
	case v := <-done:
		if v != 42 {
			t.Fatalf("got %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestPromiseMapAndFlatMap(t *testing.T) {
	c := newTestController(t)
	done := make(chan string, 1)

	c.Start(func() {
		p := Map(Of(2), func(n int) int { return n * 10 })
		p2 := FlatMap(p, func(n int) Promise[string] {
			return Of("n=" + itoa(n))
		})
		Then(p2, func(s string) { done <- s })
	}, nil, nil, nil)

	select {
	case s := <-done:
		if s != "n=20" {
			t.Fatalf("got %q, want n=20", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestPromiseOnErrorRecovers(t *testing.T) {
	c := newTestController(t)
	done := make(chan int, 1)

	c.Start(func() {
		p := OnError(OfError[int](errors.New("boom")), func(err error) int { return -1 })
		Then(p, func(v int) { done <- v })
	}, nil, nil, nil)

	select {
	case v := <-done:
		if v != -1 {
			t.Fatalf("got %d, want -1", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestPromiseMapErrorTransformsError(t *testing.T) {
	c := newTestController(t)
	done := make(chan error, 1)

	c.Start(func() {
		p := MapError(OfError[int](errors.New("inner")), func(err error) error {
			return errors.New("wrapped: " + err.Error())
		})
		subscribePromise(Current(), p, nil, func(err error) { done <- err })
	}, nil, nil, nil)

	select {
	case err := <-done:
		if err.Error() != "wrapped: inner" {
			t.Fatalf("got %q", err.Error())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestBlockingDeliversOnOwnWorker(t *testing.T) {
	c := newTestController(t)
	done := make(chan int, 1)

	c.Start(func() {
		e := Current()
		p := Blocking(func() (int, error) {
			time.Sleep(10 * time.Millisecond)
			return 7, nil
		})
		Then(p, func(v int) {
			if got, ok := CurrentOpt(); !ok || got != e || got.worker != e.worker {
				t.Errorf("continuation did not run bound to its own Execution and worker")
			}
			done <- v
		})
	}, nil, nil, nil)

	select {
	case v := <-done:
		if v != 7 {
			t.Fatalf("got %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestDownstreamSecondFirePanics(t *testing.T) {
	d := &downstream[int]{onSuccess: func(int) {}}
	d.Success(1)

	defer func() {
		r := recover()
		if r != ErrDoubleFire {
			t.Fatalf("expected ErrDoubleFire, got %v", r)
		}
	}()
	d.Success(2)
}

func TestDownstreamErrorAfterSuccessPanics(t *testing.T) {
	d := &downstream[int]{onSuccess: func(int) {}, onError: func(error) {}}
	d.Success(1)

	defer func() {
		r := recover()
		if r != ErrDoubleFire {
			t.Fatalf("expected ErrDoubleFire, got %v", r)
		}
	}()
	d.Error(errors.New("late"))
}

func TestWiretapObservesWithoutChangingOutcome(t *testing.T) {
	c := newTestController(t)
	observed := make(chan int, 1)
	delivered := make(chan int, 1)

	c.Start(func() {
		p := Wiretap(Of(99), func(v int, err error) {
			observed <- v
		})
		Then(p, func(v int) { delivered <- v })
	}, nil, nil, nil)

	select {
	case v := <-observed:
		if v != 99 {
			t.Fatalf("observed %d, want 99", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out observing")
	}
	select {
	case v := <-delivered:
		if v != 99 {
			t.Fatalf("delivered %d, want 99", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out delivering")
	}
}
