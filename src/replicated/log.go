package replicated

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mosaicnetworks/maelnode/src/kv"
	"github.com/mosaicnetworks/maelnode/src/telemetry"
	"github.com/sirupsen/logrus"
)

// Key layout of the log.
const (
	LogPrefix     = "log."
	CommitPrefix  = "commit."
	CommitSyncKey = "commit-sync"
)

// Record is a message of a log with its offset. It encodes as the pair
// [offset, msg].
type Record struct {
	Offset int
	Msg    json.RawMessage
}

// MarshalJSON ...
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{r.Offset, r.Msg})
}

// UnmarshalJSON ...
func (r *Record) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("record should be [offset, msg], got %s", data)
	}
	if err := json.Unmarshal(pair[0], &r.Offset); err != nil {
		return err
	}
	r.Msg = pair[1]
	return nil
}

// Log is a set of append-only logs, one per key. Messages live in a
// linearizable store and are appended by compare-and-swap of the whole
// array; committed offsets are plain writes to a sequential store.
type Log struct {
	lin     kv.Store
	seq     kv.Store
	backoff time.Duration
	logger  *logrus.Entry
}

// NewLog ...
func NewLog(lin, seq kv.Store, backoff time.Duration, logger *logrus.Entry) *Log {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Log{
		lin:     lin,
		seq:     seq,
		backoff: backoff,
		logger:  logger,
	}
}

// Send appends msg to the log of key and returns its offset. The offset is
// the one of the swap that succeeded; a lost swap is retried on a fresh read
// and may yield a later offset.
func (l *Log) Send(ctx context.Context, key string, msg json.RawMessage) (int, error) {
	k := LogPrefix + key

	for attempt := 1; ; attempt++ {
		cur, err := l.read(ctx, k)
		if err != nil {
			return 0, err
		}

		next := make([]json.RawMessage, len(cur), len(cur)+1)
		copy(next, cur)
		next = append(next, msg)

		var from interface{} = cur
		if cur == nil {
			from = []json.RawMessage{}
		}

		ok, err := l.lin.CompareAndSwap(ctx, k, from, next, true)
		if err != nil {
			if uncertain(err) {
				l.logger.WithFields(logrus.Fields{
					"key":   k,
					"len":   len(cur),
					"error": err,
				}).Warn("Log CAS outcome unknown, offset not reported")
			}
			return 0, fmt.Errorf("appending to %s: %w", k, err)
		}
		if ok {
			return len(next) - 1, nil
		}

		telemetry.CASRetries.WithLabelValues("send").Inc()
		l.logger.WithFields(logrus.Fields{
			"key":     k,
			"len":     len(cur),
			"attempt": attempt,
		}).Debug("Log CAS rejected, retrying")

		if err := wait(ctx, l.backoff); err != nil {
			return 0, err
		}
	}
}

// Poll returns, for every key, the records at or after its offset. Keys that
// were never written have no records.
func (l *Log) Poll(ctx context.Context, offsets map[string]int) (map[string][]Record, error) {
	keys := sortedKeys(offsets)
	logs := make([][]json.RawMessage, len(keys))

	err := forEach(keys, func(i int, key string) error {
		log, err := l.read(ctx, LogPrefix+key)
		logs[i] = log
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string][]Record, len(keys))
	for i, key := range keys {
		recs := []Record{}
		for off := offsets[key]; off < len(logs[i]); off++ {
			if off < 0 {
				continue
			}
			recs = append(recs, Record{Offset: off, Msg: logs[i][off]})
		}
		out[key] = recs
	}
	return out, nil
}

// CommitOffsets records the committed offset of every key.
func (l *Log) CommitOffsets(ctx context.Context, offsets map[string]int) error {
	return forEach(sortedKeys(offsets), func(_ int, key string) error {
		return l.seq.Write(ctx, CommitPrefix+key, offsets[key])
	})
}

// ListCommitted returns the committed offsets of keys after a synchronizing
// write. Keys without a commit are left out.
func (l *Log) ListCommitted(ctx context.Context, keys []string) (map[string]int, error) {
	if err := syncPoint(ctx, l.seq, CommitSyncKey); err != nil {
		return nil, fmt.Errorf("syncing before listing commits: %w", err)
	}

	offsets := make([]int, len(keys))
	found := make([]bool, len(keys))

	err := forEach(keys, func(i int, key string) error {
		err := l.seq.Read(ctx, CommitPrefix+key, &offsets[i])
		switch {
		case isNotFound(err):
			return nil
		case err != nil:
			return err
		}
		found[i] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(keys))
	for i, key := range keys {
		if found[i] {
			out[key] = offsets[i]
		}
	}
	return out, nil
}

// read returns the array stored at k, nil when k is missing.
func (l *Log) read(ctx context.Context, k string) ([]json.RawMessage, error) {
	var log []json.RawMessage
	err := l.lin.Read(ctx, k, &log)
	switch {
	case isNotFound(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", k, err)
	}
	return log, nil
}

// forEach runs fn for every key concurrently and returns the first error.
func forEach(keys []string, fn func(i int, key string) error) error {
	var (
		wg       sync.WaitGroup
		errLock  sync.Mutex
		firstErr error
	)

	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			if err := fn(i, key); err != nil {
				errLock.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errLock.Unlock()
			}
		}(i, key)
	}
	wg.Wait()

	return firstErr
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
