package workload

import (
	"fmt"
	"sort"
	"time"

	"github.com/mosaicnetworks/maelnode/src/kv"
	"github.com/mosaicnetworks/maelnode/src/node"
	"github.com/sirupsen/logrus"
)

// Env holds what workloads need besides the node itself.
type Env struct {
	Stores         kv.Opener
	GossipInterval time.Duration
	RetryBackoff   time.Duration
	Logger         *logrus.Entry
}

type factory func(env Env) []node.Service

var workloads = map[string]factory{
	"echo": func(env Env) []node.Service {
		return []node.Service{NewEcho()}
	},
	"unique-ids": func(env Env) []node.Service {
		return []node.Service{NewUniqueIDs()}
	},
	"broadcast": func(env Env) []node.Service {
		return []node.Service{NewBroadcast(env.GossipInterval, env.Logger)}
	},
	"g-counter": func(env Env) []node.Service {
		return []node.Service{NewGCounter(env)}
	},
	"kafka": func(env Env) []node.Service {
		return []node.Service{NewKafka(env)}
	},
	"txn-rw-register": func(env Env) []node.Service {
		return []node.Service{NewTxn()}
	},
	"lin-kv": func(env Env) []node.Service {
		return []node.Service{kv.NewService(kv.NewMemStore())}
	},
}

// Names returns the available workloads in lexical order.
func Names() []string {
	names := make([]string, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Services returns the services making up workload name.
func Services(name string, env Env) ([]node.Service, error) {
	f, ok := workloads[name]
	if !ok {
		return nil, fmt.Errorf("unknown workload %q, expected one of %v", name, Names())
	}
	if env.Stores == nil {
		env.Stores = kv.OpenClient
	}
	if env.Logger == nil {
		env.Logger = logrus.NewEntry(logrus.New())
	}
	return f(env), nil
}
