package replicated

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/maelnode/src/common"
	"github.com/mosaicnetworks/maelnode/src/kv"
	"github.com/mosaicnetworks/maelnode/src/message"
)

// flakyStore rejects the first reject compare-and-swaps it sees, whatever
// their arguments.
type flakyStore struct {
	*kv.MemStore
	sync.Mutex
	reject int
	calls  int
}

func (f *flakyStore) CompareAndSwap(ctx context.Context, key string, from, to interface{}, create bool) (bool, error) {
	f.Lock()
	f.calls++
	if f.reject > 0 {
		f.reject--
		f.Unlock()
		return false, nil
	}
	f.Unlock()
	return f.MemStore.CompareAndSwap(ctx, key, from, to, create)
}

// brokenStore fails every read.
type brokenStore struct {
	*kv.MemStore
}

var errBroken = errors.New("store unavailable")

func (brokenStore) Read(ctx context.Context, key string, v interface{}) error {
	return errBroken
}

// crashingStore fails every compare-and-swap the way a crashed service does.
type crashingStore struct {
	*kv.MemStore
}

func (crashingStore) CompareAndSwap(ctx context.Context, key string, from, to interface{}, create bool) (bool, error) {
	return false, message.NewRPCError(message.Crash, "service crashed")
}

func TestUncertainFailures(t *testing.T) {
	ctx := context.Background()

	c := NewCounter(crashingStore{kv.NewMemStore()}, time.Millisecond, common.NewTestEntry(t, "counter"))
	err := c.Add(ctx, 1)
	var rpcErr *message.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != message.Crash {
		t.Fatalf("expected the crash to be returned, got %v", err)
	}
	if !uncertain(err) {
		t.Fatalf("a crash leaves the outcome unknown")
	}

	l, _ := newTestLog(t, crashingStore{kv.NewMemStore()})
	if _, err := l.Send(ctx, "k", json.RawMessage(`1`)); !uncertain(err) {
		t.Fatalf("a crashed append should be uncertain, got %v", err)
	}

	for _, err := range []error{
		nil,
		errBroken,
		kv.ErrKeyNotFound,
		message.NewRPCError(message.PreconditionFailed, "mismatch"),
	} {
		if uncertain(err) {
			t.Fatalf("%v has a definite outcome", err)
		}
	}
}

func TestDefaultBackoff(t *testing.T) {
	c := NewCounter(kv.NewMemStore(), 0, common.NewTestEntry(t, "counter"))
	if c.backoff != DefaultBackoff {
		t.Fatalf("expected %v, got %v", DefaultBackoff, c.backoff)
	}
	l := NewLog(kv.NewMemStore(), kv.NewMemStore(), 0, common.NewTestEntry(t, "log"))
	if l.backoff != DefaultBackoff {
		t.Fatalf("expected %v, got %v", DefaultBackoff, l.backoff)
	}
}

func TestCounterSequentialDeltas(t *testing.T) {
	c := NewCounter(kv.NewMemStore(), time.Millisecond, common.NewTestEntry(t, "counter"))
	ctx := context.Background()

	if v, err := c.Read(ctx); err != nil || v != 0 {
		t.Fatalf("a fresh counter should read 0, got %d, %v", v, err)
	}

	for _, d := range []int{5, -2, 10} {
		if err := c.Add(ctx, d); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	if v, err := c.Read(ctx); err != nil || v != 13 {
		t.Fatalf("expected 13, got %d, %v", v, err)
	}
}

func TestCounterConcurrentAddsWithRejectedFirstAttempt(t *testing.T) {
	store := &flakyStore{MemStore: kv.NewMemStore(), reject: 2}
	c := NewCounter(store, time.Millisecond, common.NewTestEntry(t, "counter"))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Add(ctx, 1)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	if v, err := c.Read(ctx); err != nil || v != 2 {
		t.Fatalf("both increments should land, got %d, %v", v, err)
	}
	if store.calls < 4 {
		t.Fatalf("expected at least 4 cas attempts, got %d", store.calls)
	}
}

func TestCounterAddCanceled(t *testing.T) {
	store := &flakyStore{MemStore: kv.NewMemStore(), reject: 1 << 30}
	c := NewCounter(store, 10*time.Millisecond, common.NewTestEntry(t, "counter"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := c.Add(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the add to stop with its context, got %v", err)
	}
}

func TestCounterReadSyncs(t *testing.T) {
	store := kv.NewMemStore()
	c := NewCounter(store, time.Millisecond, common.NewTestEntry(t, "counter"))

	if _, err := c.Read(context.Background()); err != nil {
		t.Fatalf("err: %v", err)
	}

	var v int
	if err := store.Read(context.Background(), SyncKey, &v); err != nil {
		t.Fatalf("read should have written %s: %v", SyncKey, err)
	}
}

func newTestLog(t *testing.T, lin kv.Store) (*Log, *kv.MemStore) {
	seq := kv.NewMemStore()
	return NewLog(lin, seq, time.Millisecond, common.NewTestEntry(t, "log")), seq
}

func TestLogSendPoll(t *testing.T) {
	l, _ := newTestLog(t, kv.NewMemStore())
	ctx := context.Background()

	off, err := l.Send(ctx, "k1", json.RawMessage(`"a"`))
	if err != nil || off != 0 {
		t.Fatalf("first send should be offset 0, got %d, %v", off, err)
	}
	off, err = l.Send(ctx, "k1", json.RawMessage(`"b"`))
	if err != nil || off != 1 {
		t.Fatalf("second send should be offset 1, got %d, %v", off, err)
	}

	msgs, err := l.Poll(ctx, map[string]int{"k1": 1, "k2": 0})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	expected := map[string][]Record{
		"k1": {{Offset: 1, Msg: json.RawMessage(`"b"`)}},
		"k2": {},
	}
	if !reflect.DeepEqual(msgs, expected) {
		t.Fatalf("expected %v, got %v", expected, msgs)
	}

	out, err := json.Marshal(msgs)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if string(out) != `{"k1":[[1,"b"]],"k2":[]}` {
		t.Fatalf("unexpected encoding %s", out)
	}
}

func TestLogConcurrentSends(t *testing.T) {
	store := &flakyStore{MemStore: kv.NewMemStore(), reject: 3}
	l, _ := newTestLog(t, store)
	ctx := context.Background()

	const n = 10

	var wg sync.WaitGroup
	offsets := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			off, err := l.Send(ctx, "k", json.RawMessage(`1`))
			if err != nil {
				t.Errorf("err: %v", err)
				return
			}
			offsets <- off
		}(i)
	}
	wg.Wait()
	close(offsets)

	var got []int
	for off := range offsets {
		got = append(got, off)
	}
	sort.Ints(got)

	for i, off := range got {
		if off != i {
			t.Fatalf("offsets should be 0..%d, got %v", n-1, got)
		}
	}
}

func TestLogCommits(t *testing.T) {
	l, seq := newTestLog(t, kv.NewMemStore())
	ctx := context.Background()

	if err := l.CommitOffsets(ctx, map[string]int{"k1": 3, "k2": 1}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := l.CommitOffsets(ctx, map[string]int{"k2": 4}); err != nil {
		t.Fatalf("err: %v", err)
	}

	got, err := l.ListCommitted(ctx, []string{"k1", "k2", "k3"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if expected := map[string]int{"k1": 3, "k2": 4}; !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}

	var v int
	if err := seq.Read(ctx, CommitSyncKey, &v); err != nil {
		t.Fatalf("listing should have written %s: %v", CommitSyncKey, err)
	}
}

func TestLogPollPropagatesStoreErrors(t *testing.T) {
	l, _ := newTestLog(t, brokenStore{kv.NewMemStore()})

	if _, err := l.Poll(context.Background(), map[string]int{"k1": 0}); !errors.Is(err, errBroken) {
		t.Fatalf("expected the store error, got %v", err)
	}
}

func TestRecordJSON(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`[7, {"a": 1}]`), &r); err != nil {
		t.Fatalf("err: %v", err)
	}
	if r.Offset != 7 || string(r.Msg) != `{"a": 1}` {
		t.Fatalf("unexpected record %+v", r)
	}
	if err := json.Unmarshal([]byte(`[7]`), &r); err == nil {
		t.Fatalf("a record needs two elements")
	}
}
