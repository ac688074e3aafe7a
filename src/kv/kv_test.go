package kv

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/maelnode/src/common"
	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/net"
	"github.com/mosaicnetworks/maelnode/src/node"
)

func TestCanonical(t *testing.T) {
	a, err := Canonical(json.RawMessage(`{"b": [1, 2], "a": {"y": 1, "x": "s"}}`))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	b, err := Canonical(map[string]interface{}{
		"a": map[string]interface{}{"x": "s", "y": 1},
		"b": []int{1, 2},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("encodings should match:\n%s\n%s", a, b)
	}

	c, err := Canonical([]int{2, 1})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if string(c) != "[2,1]" {
		t.Fatalf("arrays keep their order, got %s", c)
	}
}

func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	var v int
	if err := store.Read(ctx, "x", &v); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if _, err := store.CompareAndSwap(ctx, "x", 0, 1, false); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("cas on a missing key should fail with ErrKeyNotFound, got %v", err)
	}

	ok, err := store.CompareAndSwap(ctx, "x", 0, 1, true)
	if err != nil || !ok {
		t.Fatalf("cas with create should succeed, got %v, %v", ok, err)
	}

	ok, err = store.CompareAndSwap(ctx, "x", 0, 2, true)
	if err != nil || ok {
		t.Fatalf("cas from a stale value should be rejected, got %v, %v", ok, err)
	}

	ok, err = store.CompareAndSwap(ctx, "x", 1, 2, false)
	if err != nil || !ok {
		t.Fatalf("cas from the current value should succeed, got %v, %v", ok, err)
	}

	if err := store.Read(ctx, "x", &v); err != nil || v != 2 {
		t.Fatalf("expected 2, got %d, %v", v, err)
	}

	log := []json.RawMessage{json.RawMessage(`{"k": 1}`)}
	if err := store.Write(ctx, "log", log); err != nil {
		t.Fatalf("err: %v", err)
	}

	ok, err = store.CompareAndSwap(ctx, "log",
		[]json.RawMessage{json.RawMessage(`{ "k" : 1 }`)},
		[]int{7}, false)
	if err != nil || !ok {
		t.Fatalf("cas should compare JSON values, got %v, %v", ok, err)
	}

	var got []int
	if err := store.Read(ctx, "log", &got); err != nil || !reflect.DeepEqual(got, []int{7}) {
		t.Fatalf("expected [7], got %v, %v", got, err)
	}
}

func TestMemStore(t *testing.T) {
	testStore(t, NewMemStore())
}

func TestEtcdStore(t *testing.T) {
	endpoints := os.Getenv("MAELNODE_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("MAELNODE_ETCD_ENDPOINTS not set")
	}

	prefix := "/maelnode-test/" + time.Now().Format("150405.000000") + "/"
	store, err := NewEtcdStore(strings.Split(endpoints, ","), 5*time.Second, prefix, common.NewTestEntry(t, "etcd"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer store.Close()

	testStore(t, store)
}

func TestStoreErrorCode(t *testing.T) {
	var coder message.Coder
	if !errors.As(keyNotFound("k"), &coder) || coder.ErrorCode() != message.KeyDoesNotExist {
		t.Fatalf("a missing key should carry code %d", message.KeyDoesNotExist)
	}
}

// startNode runs a node and initializes it as id on behalf of client c0.
func startNode(t *testing.T, id string, ids []string, trans *net.InmemTransport, client *net.InmemTransport, services ...node.Service) *node.Node {
	n, err := node.New(node.TestConfig(t), trans, services...)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	msg := &message.Init{NodeID: id, NodeIDs: ids}
	msg.MsgID = 1
	env, err := message.NewEnvelope(client.LocalAddr(), id, msg)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := client.Send(env); err != nil {
		t.Fatalf("err: %v", err)
	}
	select {
	case <-client.Consumer():
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not answer init", id)
	}
	return n
}

func TestClientAgainstService(t *testing.T) {
	kvTrans := net.NewInmemTransport(LinKV)
	nTrans := net.NewInmemTransport("n1")
	client := net.NewInmemTransport("c0")
	net.ConnectAll(kvTrans, nTrans, client)

	startNode(t, LinKV, []string{LinKV}, kvTrans, client, NewService(NewMemStore()))
	n := startNode(t, "n1", []string{"n1"}, nTrans, client)

	testStore(t, NewClient(n, LinKV))

	if n.PendingRPCs() != 0 {
		t.Fatalf("pending rpcs should be 0, not %d", n.PendingRPCs())
	}
}

func TestServiceNumericKeys(t *testing.T) {
	store := NewMemStore()
	s := NewService(store)

	ctx := context.Background()
	w := &node.Msg[WriteRequest]{Body: WriteRequest{Key: float64(3), Value: "v"}}
	if _, err := s.write(ctx, w); err != nil {
		t.Fatalf("err: %v", err)
	}

	r := &node.Msg[ReadRequest]{Body: ReadRequest{Key: "3"}}
	resp, err := s.read(ctx, r)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if string(resp.Value) != `"v"` {
		t.Fatalf("expected \"v\", got %s", resp.Value)
	}

	c := &node.Msg[CASRequest]{Body: CASRequest{Key: "3", From: "w", To: "x"}}
	_, err = s.cas(ctx, c)
	var rpcErr *message.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != message.PreconditionFailed {
		t.Fatalf("expected precondition-failed, got %v", err)
	}

	if _, err := s.read(ctx, &node.Msg[ReadRequest]{}); err == nil {
		t.Fatalf("a missing key should be rejected")
	}
}

func TestOpenMemory(t *testing.T) {
	open, closeFn, err := Open(Backend{Kind: BackendMemory})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer closeFn()

	if open(LinKV, nil) != open(LinKV, nil) {
		t.Fatalf("a service should map to a single store")
	}
	if open(LinKV, nil) == open(SeqKV, nil) {
		t.Fatalf("services should not share a store")
	}

	if _, _, err := Open(Backend{Kind: "floppy"}); err == nil {
		t.Fatalf("unknown backends should be rejected")
	}
}
