package broker

import (
	"context"
	"testing"
	"time"
)

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

func TestReaper_evicts_on_tick(t *testing.T) {
	d := &fakeDriver{}
	reg := newTestRegistry(d)

	// Backdate the session so it is already past the idle bound.
	reg.now = func() time.Time { return time.Now().Add(-time.Hour) }
	if _, _, err := reg.EnsureRunning("cam1", "rtsp://host/cam1"); err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}

	tick := &fakeTicker{ch: make(chan time.Time, 1)}
	reaped := make(chan int, 1)
	stop := startReaperWithTicker(context.Background(), reg, time.Minute, time.Second, testLogger(),
		func(n int) { reaped <- n },
		func(time.Duration) reaperTicker { return tick },
	)
	defer stop()

	tick.ch <- time.Now()

	select {
	case n := <-reaped:
		if n != 1 {
			t.Errorf("expected 1 reaped, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaper never reported an eviction")
	}
	if reg.Len() != 0 {
		t.Errorf("expected empty registry, len=%d", reg.Len())
	}
}

func TestReaper_keeps_fresh_sessions(t *testing.T) {
	d := &fakeDriver{}
	reg := newTestRegistry(d)

	if _, _, err := reg.EnsureRunning("cam1", "rtsp://host/cam1"); err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}

	tick := &fakeTicker{ch: make(chan time.Time)}
	stop := startReaperWithTicker(context.Background(), reg, time.Hour, time.Second, testLogger(),
		func(n int) { t.Errorf("unexpected eviction of %d sessions", n) },
		func(time.Duration) reaperTicker { return tick },
	)

	// Unbuffered send: returns only once the worker has taken the tick.
	tick.ch <- time.Now()
	stop()

	if reg.Len() != 1 {
		t.Errorf("fresh session was evicted, len=%d", reg.Len())
	}
}

func TestReaper_stop_is_idempotent(t *testing.T) {
	d := &fakeDriver{}
	reg := newTestRegistry(d)

	tick := &fakeTicker{ch: make(chan time.Time)}
	stop := startReaperWithTicker(context.Background(), reg, time.Minute, time.Second, testLogger(), nil,
		func(time.Duration) reaperTicker { return tick },
	)
	stop()
	stop()
}

func TestReaper_stops_on_parent_context(t *testing.T) {
	d := &fakeDriver{}
	reg := newTestRegistry(d)

	ctx, cancel := context.WithCancel(context.Background())
	tick := &fakeTicker{ch: make(chan time.Time)}
	stop := startReaperWithTicker(ctx, reg, time.Minute, time.Second, testLogger(), nil,
		func(time.Duration) reaperTicker { return tick },
	)
	cancel()
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return after parent context cancel")
	}
}
