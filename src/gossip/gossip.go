package gossip

import (
	"context"
	"time"

	"github.com/mosaicnetworks/maelnode/src/message"
	"github.com/mosaicnetworks/maelnode/src/telemetry"
	"github.com/sirupsen/logrus"
)

// PayloadType is the type tag of gossip messages.
const PayloadType = "gossip"

// Payload carries the full set known to the sender. It is one-way.
type Payload struct {
	message.Header
	Messages []int `json:"messages"`
}

// MessageType implements message.Body.
func (Payload) MessageType() string { return PayloadType }

// Sender is the fire-and-forget half of a node.
type Sender interface {
	Send(dest string, body message.Body) (int, error)
}

// Gossiper periodically pushes its Set to a random subset of peers and
// merges what it receives from them.
type Gossiper struct {
	set      *Set
	sender   Sender
	selector PeerSelector
	timer    *ControlTimer
	interval time.Duration
	logger   *logrus.Entry
}

// NewGossiper ...
func NewGossiper(set *Set,
	sender Sender,
	selector PeerSelector,
	timer *ControlTimer,
	interval time.Duration,
	logger *logrus.Entry) *Gossiper {

	return &Gossiper{
		set:      set,
		sender:   sender,
		selector: selector,
		timer:    timer,
		interval: interval,
		logger:   logger,
	}
}

// Run gossips on every tick of the timer until ctx is done.
func (g *Gossiper) Run(ctx context.Context) {
	go g.timer.Run(ctx, g.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.timer.Ticks():
			g.Round()
			if !g.timer.Reset(ctx, g.interval) {
				return
			}
		}
	}
}

// Round sends the whole set to the selected peers and returns how many
// payloads went out. Nothing is sent while the set is empty.
func (g *Gossiper) Round() int {
	snapshot := g.set.Snapshot()
	if len(snapshot) == 0 {
		return 0
	}

	telemetry.GossipRounds.Inc()

	sent := 0
	for _, peer := range g.selector.Next() {
		// each send stamps its own msg_id on the body
		if _, err := g.sender.Send(peer, &Payload{Messages: snapshot}); err != nil {
			g.logger.WithFields(logrus.Fields{
				"peer":  peer,
				"error": err,
			}).Debug("Gossip send failed")
			continue
		}
		sent++
	}

	g.logger.WithFields(logrus.Fields{
		"size":  len(snapshot),
		"peers": sent,
	}).Debug("Gossip round")

	return sent
}

// Receive merges a payload into the local set and returns the number of new
// elements.
func (g *Gossiper) Receive(p *Payload) int {
	added := g.set.Merge(p.Messages)
	if added > 0 {
		telemetry.GossipMerged.Add(float64(added))
	}
	return added
}
