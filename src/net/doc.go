// Package net implements the transports a node uses to exchange envelopes.
//
// There are two implementations of the Transport interface:
//
// - Stream: one JSON envelope per line over a reader and a writer. This is
// what a node uses in production, with stdin and stdout.
//
// - Inmem: in-memory routing by destination, used to wire several nodes,
// services and fake clients together inside a single test.
//
// Transports are fire and forget. They know nothing about msg_id or
// in_reply_to; correlating replies with requests is the job of the node
// package.
package net
