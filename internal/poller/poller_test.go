package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTicksUntilStopped(t *testing.T) {
	p := New()
	var count atomic.Int32
	p.Start(context.Background(), func(ctx context.Context) error {
		count.Add(1)
		return nil
	}, 10*time.Millisecond, false)

	waitFor(t, func() bool { return count.Load() >= 3 })
	p.Stop()

	settled := count.Load()
	time.Sleep(50 * time.Millisecond)
	if count.Load() > settled+1 {
		t.Fatalf("expected ticks to stop, went from %d to %d", settled, count.Load())
	}
}

func TestImmediateRunsBeforeInterval(t *testing.T) {
	p := New()
	var count atomic.Int32
	p.Start(context.Background(), func(ctx context.Context) error {
		count.Add(1)
		return nil
	}, time.Hour, true)
	defer p.Stop()

	waitFor(t, func() bool { return count.Load() == 1 })
}

func TestFailedTickRecordedThenCleared(t *testing.T) {
	p := New()
	var calls atomic.Int32
	boom := errors.New("boom")
	p.Start(context.Background(), func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return boom
		}
		return nil
	}, 10*time.Millisecond, true)
	defer p.Stop()

	waitFor(t, func() bool { return errors.Is(p.LastError(), boom) })
	// The next tick must still run and clear the error state.
	waitFor(t, func() bool { return p.LastError() == nil && !p.LastSuccess().IsZero() })
}

func TestPollNowOutsideCadence(t *testing.T) {
	p := New()
	var count atomic.Int32
	p.Start(context.Background(), func(ctx context.Context) error {
		count.Add(1)
		return nil
	}, time.Hour, false)
	defer p.Stop()

	if err := p.PollNow(context.Background()); err != nil {
		t.Fatalf("poll now: %v", err)
	}
	if count.Load() != 1 {
		t.Fatalf("expected exactly one invocation, got %d", count.Load())
	}
	if p.LastSuccess().IsZero() {
		t.Fatalf("expected last success to be recorded")
	}
}

func TestTicksNeverOverlap(t *testing.T) {
	p := New()
	var inFlight, maxSeen atomic.Int32
	p.Start(context.Background(), func(ctx context.Context) error {
		n := inFlight.Add(1)
		for {
			cur := maxSeen.Load()
			if n <= cur || maxSeen.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(25 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}, 5*time.Millisecond, true)

	time.Sleep(120 * time.Millisecond)
	p.Stop()

	if maxSeen.Load() > 1 {
		t.Fatalf("observed %d concurrent ticks", maxSeen.Load())
	}
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	p := New()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p.Start(context.Background(), func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}, time.Hour, true)

	<-started
	p.Stop()
	close(release)

	time.Sleep(20 * time.Millisecond)
	if !p.LastSuccess().IsZero() {
		t.Fatalf("in-flight result applied after stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
