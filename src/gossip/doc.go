// Package gossip implements anti-entropy replication of an add-only integer
// set.
//
// On every period a Gossiper sends its entire Set to ceil(sqrt(n)) random
// peers out of n. Receivers merge payloads by union, so lost, duplicated and
// reordered payloads are all harmless and replicas converge as long as the
// network eventually delivers.
//
// The period is driven by a ControlTimer, which tests can replace with a
// timer they fire by hand.
package gossip
