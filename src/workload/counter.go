package workload

import (
	"context"

	"github.com/mosaicnetworks/maelnode/src/kv"
	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
	"github.com/mosaicnetworks/maelnode/src/replicated"
)

// AddRequest ...
type AddRequest struct {
	Delta int `json:"delta"`
}

// ReadValueOK ...
type ReadValueOK struct {
	message.Header
	Value int `json:"value"`
}

// MessageType implements message.Body.
func (ReadValueOK) MessageType() string { return "read_ok" }

// GCounter is a grow-only counter kept in seq-kv.
type GCounter struct {
	env Env
}

// NewGCounter ...
func NewGCounter(env Env) *GCounter {
	return &GCounter{env: env}
}

// Routes implements node.Service.
func (g *GCounter) Routes(n *node.Node) node.Routes {
	counter := replicated.NewCounter(
		g.env.Stores(kv.SeqKV, n),
		g.env.RetryBackoff,
		g.env.Logger.WithField("component", "counter"),
	)

	return node.Routes{
		"add": node.Reply(func(ctx context.Context, msg *node.Msg[AddRequest]) (*message.Ack, error) {
			if err := counter.Add(ctx, msg.Body.Delta); err != nil {
				return nil, err
			}
			return &message.Ack{}, nil
		}),
		"read": node.Reply(func(ctx context.Context, msg *node.Msg[struct{}]) (*ReadValueOK, error) {
			v, err := counter.Read(ctx)
			if err != nil {
				return nil, err
			}
			return &ReadValueOK{Value: v}, nil
		}),
	}
}
