package replicated

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/mosaicnetworks/maelnode/src/kv"
	"github.com/mosaicnetworks/maelnode/src/message"
)

// DefaultBackoff is the pause between two compare-and-swap attempts.
const DefaultBackoff = 100 * time.Millisecond

// wait sleeps for d, up to 50% longer, or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	d += time.Duration(rand.Int63n(int64(d)/2 + 1))

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// syncPoint writes a random value to key. On a sequentially consistent store
// the reads that follow observe every write this node saw before it.
func syncPoint(ctx context.Context, store kv.Store, key string) error {
	return store.Write(ctx, key, rand.Intn(1000000000))
}

func isNotFound(err error) bool {
	return errors.Is(err, kv.ErrKeyNotFound)
}

// uncertain reports whether err leaves the outcome of a request unknown, as a
// timeout or a crash of the store does. The write may have been applied.
func uncertain(err error) bool {
	var coder message.Coder
	return errors.As(err, &coder) && !message.IsDefinite(coder.ErrorCode())
}
