// Package kv provides the key-value stores that replicated state is kept in.
//
// Store is the common interface. Client reaches the harness services lin-kv
// and seq-kv over RPC; MemStore and EtcdStore are local and etcd-backed
// alternatives; Service exposes any Store over the same read, write and cas
// protocol. Compare-and-swap compares canonical JSON encodings, produced by
// Canonical.
package kv
