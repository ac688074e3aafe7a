// Package replicated keeps counters and logs in an external key-value store.
//
// Neither type holds state in process memory: every change is a
// compare-and-swap from the value just read, retried with a short backoff
// until it wins. Reads against the sequentially consistent store are
// preceded by a write to an unrelated key, which orders them after every
// write this node has already observed.
package replicated
