// Package workload provides the handlers of each exercise as node services.
//
// Services returns the services of a workload by name:
//
//	echo             echo
//	unique-ids       generate
//	broadcast        broadcast, read, topology and the gossip protocol
//	g-counter        add, read over seq-kv
//	kafka            send, poll, commit_offsets, list_committed_offsets
//	                 over lin-kv and seq-kv
//	txn-rw-register  txn over local registers
//	lin-kv           read, write, cas served from memory
package workload
