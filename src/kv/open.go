package kv

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Opener returns the Store backing service for a node issuing calls through
// caller.
type Opener func(service string, caller Caller) Store

// OpenClient is the Opener of the maelstrom backend: every service is reached
// over RPC through caller.
func OpenClient(service string, caller Caller) Store {
	return NewClient(caller, service)
}

// Backends accepted by Open.
const (
	BackendMaelstrom = "maelstrom"
	BackendEtcd      = "etcd"
	BackendMemory    = "memory"
)

// Backend describes where workloads keep their replicated state.
type Backend struct {
	Kind            string
	EtcdEndpoints   []string
	EtcdDialTimeout time.Duration
	EtcdPrefix      string
	Logger          *logrus.Entry
}

// Open prepares the backend. The returned close function releases any
// connection it holds.
func Open(b Backend) (Opener, func() error, error) {
	nop := func() error { return nil }

	switch b.Kind {
	case "", BackendMaelstrom:
		return OpenClient, nop, nil

	case BackendMemory:
		stores := make(map[string]*MemStore)
		var lock sync.Mutex
		return func(service string, _ Caller) Store {
			lock.Lock()
			defer lock.Unlock()
			if _, ok := stores[service]; !ok {
				stores[service] = NewMemStore()
			}
			return stores[service]
		}, nop, nil

	case BackendEtcd:
		root, err := NewEtcdStore(b.EtcdEndpoints, b.EtcdDialTimeout, b.EtcdPrefix, b.Logger)
		if err != nil {
			return nil, nil, err
		}
		return func(service string, _ Caller) Store {
			return root.WithPrefix(service + "/")
		}, root.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown kv backend %q", b.Kind)
	}
}
