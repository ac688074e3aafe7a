// Package node implements the runtime of a cluster node.
//
// A Node reads envelopes from a transport and serves each of them in its own
// goroutine, so a handler that waits on a remote reply never blocks the
// delivery of that reply, or of anything else.
//
// Lifecycle
//
// A node starts Uninitialized. The first message must be init, which carries
// the node's identity and the full cluster view; the node answers init_ok and
// moves to Ready. Any other request received before that is answered with a
// temporarily-unavailable error, and a second init is rejected.
//
// Handlers
//
// Services contribute Routes, a map literal from message type to Handler.
// Handlers are built with Reply, for request/response types, or OneWay, for
// protocol messages that expect no answer. The set of routes is merged once
// when the node is built; a type claimed twice is an error returned by New.
// A handler error becomes an error reply carrying the error's code, or crash
// when it has none. A panic is recovered and reported the same way. Unknown
// types are answered with not-supported and the node keeps running.
//
// RPC
//
// Send is fire and forget. Call registers a pending slot keyed by
// (destination, msg_id) before sending and waits for the reply that carries
// the matching in_reply_to. Three outcomes are possible: a reply, a remote
// error (a *message.RPCError), or a timeout (a *TimeoutError, matching
// ErrTimeout). The slot is removed exactly once whichever comes first. A reply
// that arrives after its slot is gone is dropped.
package node
