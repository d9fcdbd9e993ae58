package services

import (
	"math/rand"
	"sync"

	"fleet-svc/app/domains"
)

// DefaultCapacityThreshold is the utilization ratio at or above which a
// node stops accepting new instances.
const DefaultCapacityThreshold = 0.9

// PlacementSelector picks a node for a new instance. It is a
// randomized-greedy heuristic: shuffle the compatible nodes, take the
// first one under the capacity threshold. The shuffle spreads load
// across ties; it expresses no other preference. The snapshot it reads
// is advisory, not a reservation — concurrent placements may race past
// the threshold against a stale snapshot.
type PlacementSelector struct {
	threshold float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPlacementSelector creates a selector. rng may be nil, in which
// case a time-seeded source is used; tests pass a seeded one for
// deterministic shuffles.
func NewPlacementSelector(threshold float64, rng *rand.Rand) *PlacementSelector {
	if threshold <= 0 {
		threshold = DefaultCapacityThreshold
	}
	return &PlacementSelector{threshold: threshold, rng: rng}
}

// Choose returns a node that supports the game and has capacity, or
// domains.ErrNoCapacity. Nodes that have never been polled are skipped:
// no snapshot means not-yet-eligible, not full and not empty.
func (s *PlacementSelector) Choose(game string, nodes []domains.Node) (*domains.Node, error) {
	contenders := make([]domains.Node, 0, len(nodes))
	for _, node := range nodes {
		if node.SupportsGame(game) {
			contenders = append(contenders, node)
		}
	}
	if len(contenders) == 0 {
		return nil, domains.ErrNoCapacity
	}

	s.shuffle(contenders)

	for i := range contenders {
		node := &contenders[i]
		if !node.Status.Polled() || *node.Status.TotalDisk == 0 {
			continue
		}
		utilization := 1 - float64(*node.Status.FreeDisk)/float64(*node.Status.TotalDisk)
		if utilization < s.threshold {
			return node, nil
		}
	}
	return nil, domains.ErrNoCapacity
}

func (s *PlacementSelector) shuffle(nodes []domains.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	swap := func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] }
	if s.rng != nil {
		s.rng.Shuffle(len(nodes), swap)
		return
	}
	rand.Shuffle(len(nodes), swap)
}
