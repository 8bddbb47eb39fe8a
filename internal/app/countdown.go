package app

import (
	"context"
	"sync"
	"time"

	"live-quiz-service/internal/poller"
)

// countdown ticks once per tick interval while a question is displayed and
// runs an expiry hook when it reaches zero. It is driven by its own Poller so
// a failing store poll never stalls the timer.
type countdown struct {
	tick time.Duration
	poll *poller.Poller

	mu        sync.Mutex
	remaining int
	expired   func()
}

func newCountdown(tick time.Duration) *countdown {
	if tick <= 0 {
		tick = time.Second
	}
	return &countdown{tick: tick, poll: poller.New()}
}

// reset restarts the countdown at seconds. A non-positive limit means the
// question is untimed and the countdown stays idle.
func (c *countdown) reset(seconds int, expired func()) {
	c.poll.Stop()

	c.mu.Lock()
	c.remaining = seconds
	c.expired = expired
	c.mu.Unlock()

	if seconds <= 0 {
		return
	}
	c.poll.Start(context.Background(), c.step, c.tick, false)
}

func (c *countdown) stop() {
	c.poll.Stop()
}

func (c *countdown) left() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *countdown) step(context.Context) error {
	c.mu.Lock()
	if c.remaining <= 0 {
		c.mu.Unlock()
		return nil
	}
	c.remaining--
	fire := c.remaining == 0
	expired := c.expired
	c.mu.Unlock()

	if fire {
		c.poll.Stop()
		if expired != nil {
			expired()
		}
	}
	return nil
}
