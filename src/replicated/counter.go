package replicated

import (
	"context"
	"fmt"
	"time"

	"github.com/mosaicnetworks/maelnode/src/kv"
	"github.com/mosaicnetworks/maelnode/src/telemetry"
	"github.com/sirupsen/logrus"
)

// Default keys of the counter.
const (
	CounterKey = "counter"
	SyncKey    = "sync"
)

// Counter is an integer kept in a key-value store and only changed by
// compare-and-swap. It holds no state of its own.
type Counter struct {
	store   kv.Store
	key     string
	syncKey string
	backoff time.Duration
	logger  *logrus.Entry
}

// NewCounter returns a counter stored under CounterKey. A backoff of zero
// means DefaultBackoff.
func NewCounter(store kv.Store, backoff time.Duration, logger *logrus.Entry) *Counter {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Counter{
		store:   store,
		key:     CounterKey,
		syncKey: SyncKey,
		backoff: backoff,
		logger:  logger,
	}
}

// Add increments the counter by delta, retrying until a compare-and-swap
// from the value it read succeeds. It gives up only when ctx is done or the
// store fails.
func (c *Counter) Add(ctx context.Context, delta int) error {
	for attempt := 1; ; attempt++ {
		cur, err := c.current(ctx)
		if err != nil {
			return err
		}

		ok, err := c.store.CompareAndSwap(ctx, c.key, cur, cur+delta, true)
		if err != nil {
			if uncertain(err) {
				c.logger.WithFields(logrus.Fields{
					"key":   c.key,
					"delta": delta,
					"error": err,
				}).Warn("Counter CAS outcome unknown")
			}
			return fmt.Errorf("adding %d to %s: %w", delta, c.key, err)
		}
		if ok {
			return nil
		}

		telemetry.CASRetries.WithLabelValues("add").Inc()
		c.logger.WithFields(logrus.Fields{
			"key":     c.key,
			"from":    cur,
			"attempt": attempt,
		}).Debug("Counter CAS rejected, retrying")

		if err := wait(ctx, c.backoff); err != nil {
			return err
		}
	}
}

// Read returns the counter value after a synchronizing write, so that it is
// at least as recent as every write this node has seen.
func (c *Counter) Read(ctx context.Context) (int, error) {
	if err := syncPoint(ctx, c.store, c.syncKey); err != nil {
		return 0, fmt.Errorf("syncing before read: %w", err)
	}
	return c.current(ctx)
}

// current reads the stored value, a missing key counting as 0.
func (c *Counter) current(ctx context.Context) (int, error) {
	var v int
	err := c.store.Read(ctx, c.key, &v)
	switch {
	case isNotFound(err):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("reading %s: %w", c.key, err)
	}
	return v, nil
}
