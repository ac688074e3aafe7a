package kv

import (
	"context"
	"sync"
)

// MemStore is an in-process linearizable Store. Values are held in canonical
// encoding so that compare-and-swap compares JSON values, not Go values.
type MemStore struct {
	sync.Mutex
	values map[string][]byte
}

// NewMemStore ...
func NewMemStore() *MemStore {
	return &MemStore{
		values: make(map[string][]byte),
	}
}

// Read implements Store.
func (s *MemStore) Read(ctx context.Context, key string, v interface{}) error {
	s.Lock()
	data, ok := s.values[key]
	s.Unlock()

	if !ok {
		return keyNotFound(key)
	}
	return decodeValue(data, v)
}

// Write implements Store.
func (s *MemStore) Write(ctx context.Context, key string, v interface{}) error {
	data, err := Canonical(v)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	s.values[key] = data
	return nil
}

// CompareAndSwap implements Store.
func (s *MemStore) CompareAndSwap(ctx context.Context, key string, from, to interface{}, create bool) (bool, error) {
	fromData, err := Canonical(from)
	if err != nil {
		return false, err
	}
	toData, err := Canonical(to)
	if err != nil {
		return false, err
	}

	s.Lock()
	defer s.Unlock()

	cur, ok := s.values[key]
	switch {
	case !ok && !create:
		return false, keyNotFound(key)
	case ok && string(cur) != string(fromData):
		return false, nil
	}

	s.values[key] = toData
	return true, nil
}

// Len returns the number of keys held.
func (s *MemStore) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.values)
}
