package gossip

import (
	"math"
	"math/rand"
)

// PeerSelector picks the targets of a gossip round.
type PeerSelector interface {
	Peers() []string
	Next() []string
}

// RandomPeerSelector picks ceil(sqrt(n)) distinct peers uniformly at random
// out of n. The only peer of a two-node cluster is always picked.
type RandomPeerSelector struct {
	selfID          string
	selectablePeers []string
}

// NewRandomPeerSelector returns a selector over nodeIDs, excluding selfID.
func NewRandomPeerSelector(nodeIDs []string, selfID string) *RandomPeerSelector {
	selectable := make([]string, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if id != selfID {
			selectable = append(selectable, id)
		}
	}
	return &RandomPeerSelector{
		selfID:          selfID,
		selectablePeers: selectable,
	}
}

// Peers returns every selectable peer.
func (ps *RandomPeerSelector) Peers() []string {
	out := make([]string, len(ps.selectablePeers))
	copy(out, ps.selectablePeers)
	return out
}

// Next returns a fresh random subset of peers, or nil when there are none.
func (ps *RandomPeerSelector) Next() []string {
	n := len(ps.selectablePeers)
	if n == 0 {
		return nil
	}

	k := Fanout(n)

	picked := make([]string, 0, k)
	for _, i := range rand.Perm(n)[:k] {
		picked = append(picked, ps.selectablePeers[i])
	}
	return picked
}

// Fanout is the number of peers contacted per round out of n.
func Fanout(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(math.Sqrt(float64(n))))
}
