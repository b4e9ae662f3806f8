package scan_test

import (
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/autofetch/scan"
)

// fakeTicker is a ticker driven by the test.
type fakeTicker struct {
	d       time.Duration
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fire delivers one tick. It returns once the receiving loop has taken it.
func (t *fakeTicker) fire(tb testing.TB) {
	tb.Helper()
	select {
	case t.c <- time.Now():
	case <-time.After(2 * time.Second):
		tb.Fatalf("tick on %v ticker was not received", t.d)
	}
}

// tickers records every ticker created by a scheduler.
type tickers struct {
	mu      sync.Mutex
	created []*fakeTicker
}

func (f *tickers) New(d time.Duration) scan.Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{d: d, c: make(chan time.Time)}
	f.created = append(f.created, t)
	return t
}

// With returns the tickers created with interval d.
func (f *tickers) With(d time.Duration) []*fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeTicker
	for _, t := range f.created {
		if t.d == d {
			out = append(out, t)
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(tb testing.TB, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatal("condition not met before deadline")
}

// receive waits for one value on ch.
func receive[T any](tb testing.TB, ch <-chan T) T {
	tb.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}
