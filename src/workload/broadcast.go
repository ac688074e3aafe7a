package workload

import (
	"context"
	"sync"
	"time"

	"github.com/mosaicnetworks/maelnode/src/gossip"
	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/node"
	"github.com/sirupsen/logrus"
)

// DefaultGossipInterval ...
const DefaultGossipInterval = 200 * time.Millisecond

// BroadcastRequest ...
type BroadcastRequest struct {
	Message int `json:"message"`
}

// ReadMessagesOK ...
type ReadMessagesOK struct {
	message.Header
	Messages []int `json:"messages"`
}

// MessageType implements message.Body.
func (ReadMessagesOK) MessageType() string { return "read_ok" }

// TopologyRequest ...
type TopologyRequest struct {
	Topology map[string][]string `json:"topology"`
}

// Broadcast replicates the set of broadcast messages by gossip. The topology
// suggested by the harness is logged but peers are picked at random.
type Broadcast struct {
	set      *gossip.Set
	interval time.Duration
	logger   *logrus.Entry

	gossiper *gossip.Gossiper
}

// NewBroadcast ...
func NewBroadcast(interval time.Duration, logger *logrus.Entry) *Broadcast {
	if interval <= 0 {
		interval = DefaultGossipInterval
	}
	return &Broadcast{
		set:      gossip.NewSet(),
		interval: interval,
		logger:   logger,
	}
}

// Routes implements node.Service.
func (b *Broadcast) Routes(n *node.Node) node.Routes {
	b.gossiper = gossip.NewGossiper(
		b.set,
		n,
		&clusterSelector{n: n},
		gossip.NewRandomControlTimer(),
		b.interval,
		b.logger.WithField("component", "gossip"),
	)

	return node.Routes{
		"broadcast": node.Reply(func(ctx context.Context, msg *node.Msg[BroadcastRequest]) (*message.Ack, error) {
			b.set.Add(msg.Body.Message)
			return &message.Ack{}, nil
		}),
		"read": node.Reply(func(ctx context.Context, msg *node.Msg[struct{}]) (*ReadMessagesOK, error) {
			return &ReadMessagesOK{Messages: b.set.Snapshot()}, nil
		}),
		"topology": node.Reply(func(ctx context.Context, msg *node.Msg[TopologyRequest]) (*message.Ack, error) {
			b.logger.WithFields(logrus.Fields{
				"node":      n.ID(),
				"neighbors": msg.Body.Topology[n.ID()],
			}).Debug("Ignoring suggested topology")
			return &message.Ack{}, nil
		}),
		gossip.PayloadType: node.OneWay(func(ctx context.Context, msg *node.Msg[gossip.Payload]) error {
			b.gossiper.Receive(&msg.Body)
			return nil
		}),
	}
}

// Run implements node.Runner.
func (b *Broadcast) Run(ctx context.Context, n *node.Node) {
	b.gossiper.Run(ctx)
}

// clusterSelector picks peers out of the cluster view, which is only known
// once the node is initialized.
type clusterSelector struct {
	n        *node.Node
	once     sync.Once
	selector *gossip.RandomPeerSelector
}

func (c *clusterSelector) get() *gossip.RandomPeerSelector {
	c.once.Do(func() {
		c.selector = gossip.NewRandomPeerSelector(c.n.NodeIDs(), c.n.ID())
	})
	return c.selector
}

func (c *clusterSelector) Peers() []string {
	return c.get().Peers()
}

func (c *clusterSelector) Next() []string {
	return c.get().Next()
}
