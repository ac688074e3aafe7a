package node

import (
	"sync"
	"sync/atomic"
)

// State captures the lifecycle of a node: Uninitialized, Ready, or Shutdown.
type State uint32

const (
	// Uninitialized is the initial state. Only the init message is served;
	// the node has no identity yet.
	Uninitialized State = iota

	// Ready is the state in which the node knows its identity and the
	// cluster view and serves every registered message type.
	Ready

	// Shutdown is the state in which the input is exhausted or the node was
	// cancelled. Background work is stopped and the transport closed.
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Ready:
		return "Ready"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// state wraps a State with atomic accessors and tracks the goroutines that
// serve inbound messages, so that the node can wait for them to drain.
type state struct {
	state   State
	wg      sync.WaitGroup
	wgCount int32
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup. Every call runs f; inbound
// messages are never dropped for lack of a slot.
func (b *state) goFunc(f func()) {
	b.wg.Add(1)
	atomic.AddInt32(&b.wgCount, 1)
	go func() {
		defer b.wg.Done()
		defer atomic.AddInt32(&b.wgCount, -1)
		f()
	}()
}

func (b *state) routines() int32 {
	return atomic.LoadInt32(&b.wgCount)
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
