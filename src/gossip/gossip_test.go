package gossip

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/maelnode/src/common"
	"github.com/mosaicnetworks/maelnode/src/message"
)

func TestSetMergeIdempotent(t *testing.T) {
	s := NewSet()

	if added := s.Merge([]int{3, 1, 2}); added != 3 {
		t.Fatalf("first merge should add 3, not %d", added)
	}
	if added := s.Merge([]int{3, 1, 2}); added != 0 {
		t.Fatalf("second merge should add nothing, not %d", added)
	}
	if snap := s.Snapshot(); !reflect.DeepEqual(snap, []int{1, 2, 3}) {
		t.Fatalf("snapshot should be [1 2 3], not %v", snap)
	}
}

func TestSetMergeOrderIndependent(t *testing.T) {
	payloads := [][]int{{1, 2}, {2, 3, 4}, {9}, {}, {4, 1, 7}}

	a := NewSet()
	for _, p := range payloads {
		a.Merge(p)
	}

	b := NewSet()
	for i := len(payloads) - 1; i >= 0; i-- {
		b.Merge(payloads[i])
	}

	// (p0 ∪ p1) ∪ (p2 ∪ p3 ∪ p4)
	left, right := NewSet(), NewSet()
	left.Merge(payloads[0])
	left.Merge(payloads[1])
	for _, p := range payloads[2:] {
		right.Merge(p)
	}
	c := NewSet()
	c.Merge(right.Snapshot())
	c.Merge(left.Snapshot())

	want := []int{1, 2, 3, 4, 7, 9}
	for name, s := range map[string]*Set{"in order": a, "reversed": b, "grouped": c} {
		if snap := s.Snapshot(); !reflect.DeepEqual(snap, want) {
			t.Fatalf("%s: expected %v, got %v", name, want, snap)
		}
	}
}

func TestSetConcurrentAdd(t *testing.T) {
	s := NewSet()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Add(i)
			}
		}(w)
	}
	wg.Wait()

	if s.Len() != 100 {
		t.Fatalf("expected 100 elements, got %d", s.Len())
	}
}

func TestFanout(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 2: 2, 3: 2, 4: 2, 5: 3, 9: 3, 10: 4, 24: 5}
	for n, want := range cases {
		if got := Fanout(n); got != want {
			t.Errorf("Fanout(%d) should be %d, not %d", n, want, got)
		}
	}
}

func TestRandomPeerSelectorTwoNodes(t *testing.T) {
	ps := NewRandomPeerSelector([]string{"n1", "n2"}, "n1")

	for i := 0; i < 20; i++ {
		if next := ps.Next(); !reflect.DeepEqual(next, []string{"n2"}) {
			t.Fatalf("expected [n2], got %v", next)
		}
	}
}

func TestRandomPeerSelectorDistinctPeers(t *testing.T) {
	ids := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		ids = append(ids, fmt.Sprintf("n%d", i))
	}
	ps := NewRandomPeerSelector(ids, "n0")

	if len(ps.Peers()) != 24 {
		t.Fatalf("selector should exclude self, has %v", ps.Peers())
	}

	for i := 0; i < 50; i++ {
		next := ps.Next()
		if len(next) != 5 {
			t.Fatalf("expected 5 peers, got %v", next)
		}
		seen := make(map[string]bool)
		for _, p := range next {
			if p == "n0" || seen[p] {
				t.Fatalf("bad selection %v", next)
			}
			seen[p] = true
		}
	}
}

func TestRandomPeerSelectorAlone(t *testing.T) {
	ps := NewRandomPeerSelector([]string{"n1"}, "n1")
	if next := ps.Next(); next != nil {
		t.Fatalf("a lone node has no peers, got %v", next)
	}
}

type sent struct {
	dest string
	body *Payload
}

type fakeSender struct {
	sync.Mutex
	sent []sent
	ch   chan sent
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan sent, 16)}
}

func (f *fakeSender) Send(dest string, body message.Body) (int, error) {
	f.Lock()
	defer f.Unlock()
	s := sent{dest: dest, body: body.(*Payload)}
	f.sent = append(f.sent, s)
	f.ch <- s
	return len(f.sent), nil
}

// manualTimer returns a factory whose timers expire only when fire is
// signalled.
func manualTimer() (timerFactory, chan time.Time) {
	fire := make(chan time.Time)
	return func(time.Duration) <-chan time.Time { return fire }, fire
}

func TestGossiperRound(t *testing.T) {
	set := NewSet()
	sender := newFakeSender()
	selector := NewRandomPeerSelector([]string{"n1", "n2"}, "n1")
	g := NewGossiper(set, sender, selector, NewRandomControlTimer(), time.Hour, common.NewTestEntry(t, "gossip"))

	if n := g.Round(); n != 0 {
		t.Fatalf("an empty set should not be gossiped, sent %d", n)
	}

	set.Merge([]int{4, 2})
	if n := g.Round(); n != 1 {
		t.Fatalf("expected one payload, sent %d", n)
	}

	s := <-sender.ch
	if s.dest != "n2" || !reflect.DeepEqual(s.body.Messages, []int{2, 4}) {
		t.Fatalf("unexpected payload %v to %s", s.body.Messages, s.dest)
	}
}

func TestGossiperReceive(t *testing.T) {
	set := NewSet()
	g := NewGossiper(set, newFakeSender(), NewRandomPeerSelector(nil, "n1"),
		NewRandomControlTimer(), time.Hour, common.NewTestEntry(t, "gossip"))

	if added := g.Receive(&Payload{Messages: []int{1, 2}}); added != 2 {
		t.Fatalf("expected 2 new elements, got %d", added)
	}
	if added := g.Receive(&Payload{Messages: []int{2, 3}}); added != 1 {
		t.Fatalf("expected 1 new element, got %d", added)
	}
	if snap := set.Snapshot(); !reflect.DeepEqual(snap, []int{1, 2, 3}) {
		t.Fatalf("unexpected set %v", snap)
	}
}

func TestGossiperRunOnTimer(t *testing.T) {
	set := NewSet()
	set.Add(7)
	sender := newFakeSender()
	factory, fire := manualTimer()
	g := NewGossiper(set, sender, NewRandomPeerSelector([]string{"n1", "n2"}, "n1"),
		NewControlTimer(factory), time.Hour, common.NewTestEntry(t, "gossip"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	for round := 0; round < 3; round++ {
		fire <- time.Now()
		select {
		case s := <-sender.ch:
			if s.dest != "n2" {
				t.Fatalf("round %d went to %s", round, s.dest)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d never happened", round)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("gossiper did not stop")
	}
}
