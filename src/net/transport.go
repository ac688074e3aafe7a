package net

import (
	"errors"

	"github.com/mosaicnetworks/maelnode/src/message"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// Transport provides an interface for message transports to allow a node to
// exchange envelopes with the harness and with other nodes. Delivery is fire
// and forget: request/reply correlation happens above this layer.
type Transport interface {

	// Listen starts delivering inbound envelopes to the Consumer channel. It
	// blocks until the input is exhausted or the transport is closed.
	Listen()

	// Consumer returns the channel of inbound envelopes. It is closed when the
	// input is exhausted.
	Consumer() <-chan message.Envelope

	// Send hands an envelope to the transport for delivery to env.Dest.
	Send(env message.Envelope) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
