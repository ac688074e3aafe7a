package net

import (
	"fmt"
	"sync"

	"github.com/mosaicnetworks/maelnode/src/message"
)

// InmemTransport Implements the Transport interface, to allow nodes to be
// tested in-memory without going through standard streams. Envelopes are
// routed by destination to the transports registered with Connect.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan message.Envelope
	localAddr  string
	peers      map[string]*InmemTransport

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewInmemTransport is used to initialize a new transport for the node or
// client named addr.
func NewInmemTransport(addr string) *InmemTransport {
	return &InmemTransport{
		consumerCh: make(chan message.Envelope, 64),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		shutdownCh: make(chan struct{}),
	}
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan message.Envelope {
	return i.consumerCh
}

// LocalAddr returns the name this transport was created with.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(env message.Envelope) error {
	select {
	case <-i.shutdownCh:
		return ErrTransportShutdown
	default:
	}

	i.RLock()
	peer, ok := i.peers[env.Dest]
	i.RUnlock()

	if !ok {
		return fmt.Errorf("failed to connect to peer: %v", env.Dest)
	}

	select {
	case peer.consumerCh <- env:
		return nil
	case <-peer.shutdownCh:
		return ErrTransportShutdown
	}
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t *InmemTransport) {
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = t
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.DisconnectAll()
	i.shutdownOnce.Do(func() { close(i.shutdownCh) })
	return nil
}

// Listen is an empty function as there is no need to defer
// initialisation of the Inmem transport
func (i *InmemTransport) Listen() {
}

// ConnectAll routes every transport to every other one, including itself.
func ConnectAll(transports ...*InmemTransport) {
	for _, a := range transports {
		for _, b := range transports {
			a.Connect(b.localAddr, b)
		}
	}
}
