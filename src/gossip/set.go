package gossip

import (
	"sort"
	"sync"
)

// Set is an add-only set of integers safe for concurrent use.
type Set struct {
	sync.RWMutex
	items map[int]struct{}
}

// NewSet ...
func NewSet() *Set {
	return &Set{
		items: make(map[int]struct{}),
	}
}

// Add inserts v and reports whether it was new.
func (s *Set) Add(v int) bool {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.items[v]; ok {
		return false
	}
	s.items[v] = struct{}{}
	return true
}

// Merge adds every element of vs and returns how many were new. Merging is a
// set union: repeated, reordered or regrouped merges end in the same set.
func (s *Set) Merge(vs []int) int {
	s.Lock()
	defer s.Unlock()

	added := 0
	for _, v := range vs {
		if _, ok := s.items[v]; !ok {
			s.items[v] = struct{}{}
			added++
		}
	}
	return added
}

// Snapshot returns the current elements in ascending order.
func (s *Set) Snapshot() []int {
	s.RLock()
	defer s.RUnlock()

	out := make([]int, 0, len(s.items))
	for v := range s.items {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Len ...
func (s *Set) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.items)
}
