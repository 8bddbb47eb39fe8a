package poller

import (
	"context"
	"log"
	"sync"
	"time"
)

// Func is the callback a Poller drives. A returned error marks the tick as
// failed but never stops the cadence.
type Func func(ctx context.Context) error

// Poller invokes a callback on a fixed interval. It is restartable, can be
// stopped independently of whoever started it, and supports one-shot
// out-of-band polls. Ticks are never overlapped: if a callback is still
// running when the interval fires, the next tick waits for it to finish.
type Poller struct {
	mu     sync.Mutex // guards lifecycle and recorded state
	runMu  sync.Mutex // serializes callback invocations
	clock  func() time.Time
	fn     Func
	cancel context.CancelFunc

	running     bool
	lastSuccess time.Time
	lastErr     error
}

func New() *Poller {
	return &Poller{clock: time.Now}
}

// NewWithClock is test-only for deterministic timestamps.
func NewWithClock(now func() time.Time) *Poller {
	return &Poller{clock: now}
}

// Start begins invoking fn every interval. If immediate is true, fn runs once
// before the first interval elapses. A running poller is restarted with the
// new callback and cadence.
func (p *Poller) Start(ctx context.Context, fn Func, interval time.Duration, immediate bool) {
	p.Stop()

	runCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.fn = fn
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	go func() {
		if immediate {
			p.invoke(runCtx, fn)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.invoke(runCtx, fn)
			}
		}
	}()
}

// Stop halts future ticks. An in-flight callback is allowed to finish but its
// result is discarded rather than recorded.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.running = false
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// PollNow invokes the callback exactly once, outside the regular cadence,
// recording success or failure the same way a scheduled tick would. It is a
// no-op if the poller was never started.
func (p *Poller) PollNow(ctx context.Context) error {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	if fn == nil {
		return nil
	}
	return p.invoke(ctx, fn)
}

// Running reports whether the poller is currently scheduled.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastError returns the error of the most recent tick, or nil if it succeeded.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// LastSuccess returns when a tick last completed without error.
func (p *Poller) LastSuccess() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSuccess
}

func (p *Poller) invoke(ctx context.Context, fn Func) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := fn(ctx)
	if ctx.Err() != nil {
		// Stopped while the callback was in flight; discard the result.
		return err
	}

	p.mu.Lock()
	if err != nil {
		p.lastErr = err
		log.Printf("poller: tick failed: %v", err)
	} else {
		p.lastErr = nil
		p.lastSuccess = p.clock()
	}
	p.mu.Unlock()
	return err
}
