package gossip

import (
	"context"
	"math/rand"
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer fires on tickCh each time the current timer expires. Expiry
// does not re-arm it; the listening process calls Reset once it is done with
// the tick.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the timer
	stopCh       chan struct{}      //receives instruction to stop the timer
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
	}
}

// NewRandomControlTimer returns a timer expiring somewhere between d and 2d
// after each reset, so that nodes started together do not gossip in lockstep.
func NewRandomControlTimer() *ControlTimer {
	randomTimeout := func(min time.Duration) <-chan time.Time {
		if min == 0 {
			return nil
		}
		extra := (time.Duration(rand.Int63()) % min)
		return time.After(min + extra)
	}
	return NewControlTimer(randomTimeout)
}

// Ticks returns the channel signalled on every expiry.
func (c *ControlTimer) Ticks() <-chan struct{} {
	return c.tickCh
}

// Run arms the timer with init and serves ticks and resets until ctx is done.
func (c *ControlTimer) Run(ctx context.Context, init time.Duration) {
	timer := c.timerFactory(init)
	for {
		select {
		case <-timer:
			timer = nil
			select {
			case c.tickCh <- struct{}{}:
			case <-ctx.Done():
				return
			}
		case t := <-c.resetCh:
			timer = c.timerFactory(t)
		case <-c.stopCh:
			timer = nil
		case <-ctx.Done():
			return
		}
	}
}

// Reset re-arms the timer with d. It returns false if ctx ended first.
func (c *ControlTimer) Reset(ctx context.Context, d time.Duration) bool {
	select {
	case c.resetCh <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop disarms the timer until the next Reset.
func (c *ControlTimer) Stop(ctx context.Context) {
	select {
	case c.stopCh <- struct{}{}:
	case <-ctx.Done():
	}
}
