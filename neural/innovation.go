package neural

import (
	"github.com/yaricom/goNEAT/v4/neat/genetics"
)

// InnovationTracker issues genome ids, innovation numbers and hidden node
// ids. Identical structural mutations share ids: linking the same pair of
// nodes, or splitting the same edge, yields the id issued the first time.
// It is owned by the simulation thread.
type InnovationTracker struct {
	nextGenome int
	nextInnov  int64
	nextNode   int
	pairs      map[int64]int64
	splits     map[int64]int
}

// NewInnovationTracker creates a tracker with empty history.
func NewInnovationTracker() *InnovationTracker {
	return &InnovationTracker{
		nextGenome: 1,
		nextInnov:  1,
		nextNode:   firstHiddenID,
		pairs:      make(map[int64]int64),
		splits:     make(map[int64]int),
	}
}

// NextGenomeID returns a unique genome id.
func (t *InnovationTracker) NextGenomeID() int {
	id := t.nextGenome
	t.nextGenome++
	return id
}

// Link returns the innovation number for an edge between two node ids.
func (t *InnovationTracker) Link(inID, outID int) int64 {
	key := connectionKey(inID, outID)
	if innov, ok := t.pairs[key]; ok {
		return innov
	}
	innov := t.nextInnov
	t.nextInnov++
	t.pairs[key] = innov
	return innov
}

// SplitNode returns the hidden node id created by splitting the edge with
// the given innovation number.
func (t *InnovationTracker) SplitNode(innov int64) int {
	if id, ok := t.splits[innov]; ok {
		return id
	}
	id := t.FreshNode()
	t.splits[innov] = id
	return id
}

// FreshNode returns a node id that has never been issued.
func (t *InnovationTracker) FreshNode() int {
	id := t.nextNode
	t.nextNode++
	return id
}

// Observe advances the counters past every id used by g, and records its
// edges so later mutations reuse their innovation numbers. Used after
// genomes are loaded from a save file.
func (t *InnovationTracker) Observe(g *genetics.Genome) {
	if g == nil {
		return
	}
	if g.Id >= t.nextGenome {
		t.nextGenome = g.Id + 1
	}
	for _, n := range g.Nodes {
		if n.Id >= t.nextNode {
			t.nextNode = n.Id + 1
		}
	}
	for _, gene := range g.Genes {
		if gene.InnovationNum >= t.nextInnov {
			t.nextInnov = gene.InnovationNum + 1
		}
		key := connectionKey(gene.Link.InNode.Id, gene.Link.OutNode.Id)
		if _, ok := t.pairs[key]; !ok {
			t.pairs[key] = gene.InnovationNum
		}
	}
}

// connectionKey creates a unique key for a connection between two nodes.
func connectionKey(inID, outID int) int64 {
	return int64(inID)<<32 | int64(uint32(outID))
}
