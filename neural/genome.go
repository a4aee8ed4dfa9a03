package neural

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yaricom/goNEAT/v4/neat/genetics"
	neatmath "github.com/yaricom/goNEAT/v4/neat/math"
	"github.com/yaricom/goNEAT/v4/neat/network"

	"github.com/pthm-cable/forge/rng"
)

// ErrNilGenome is returned by operators handed a nil genome.
var ErrNilGenome = errors.New("nil genome")

// newIONodes returns the fixed input, bias and output nodes in id order.
func newIONodes() []*network.NNode {
	nodes := make([]*network.NNode, 0, NumInputs+1+NumOutputs)
	for i := 0; i < NumInputs; i++ {
		node := network.NewNNode(firstInputID+i, network.InputNeuron)
		node.ActivationType = neatmath.LinearActivation
		nodes = append(nodes, node)
	}
	bias := network.NewNNode(biasNodeID, network.BiasNeuron)
	bias.ActivationType = neatmath.LinearActivation
	nodes = append(nodes, bias)
	for i := 0; i < NumOutputs; i++ {
		node := network.NewNNode(firstOutputID+i, network.OutputNeuron)
		node.ActivationType = neatmath.TanhActivation
		nodes = append(nodes, node)
	}
	return nodes
}

// CreateBrainGenome creates a founder genome. Each input and the bias node
// connects to each output with probability connProb; every output is
// guaranteed at least one incoming edge.
func CreateBrainGenome(id int, connProb float64, tracker *InnovationTracker, src rng.Source) *genetics.Genome {
	nodes := newIONodes()
	outputs := nodes[NumInputs+1:]
	sources := nodes[:NumInputs+1]

	genes := make([]*genetics.Gene, 0)
	for _, out := range outputs {
		connected := false
		for _, in := range sources {
			if src.Float64() >= connProb {
				continue
			}
			genes = append(genes, newGene(tracker, in, out, src.Float64()*4-2))
			connected = true
		}
		if !connected {
			in := sources[src.IntN(len(sources))]
			genes = append(genes, newGene(tracker, in, out, src.Float64()*2-1))
		}
	}
	sortGenes(genes)
	return genetics.NewGenome(id, nil, nodes, genes)
}

// CreateBiasGenome creates a genome whose outputs are driven only by the
// bias node. Output i receives weight bias[i]; zero weights are left
// unconnected. Scripted spawns use it to pin a behaviour.
func CreateBiasGenome(id int, bias [NumOutputs]float64, tracker *InnovationTracker) *genetics.Genome {
	nodes := newIONodes()
	biasNode := nodes[NumInputs]
	genes := make([]*genetics.Gene, 0, NumOutputs)
	for i, w := range bias {
		if w == 0 {
			continue
		}
		genes = append(genes, newGene(tracker, biasNode, nodes[NumInputs+1+i], w))
	}
	return genetics.NewGenome(id, nil, nodes, genes)
}

func newGene(tracker *InnovationTracker, in, out *network.NNode, w float64) *genetics.Gene {
	return genetics.NewGeneWithTrait(nil, w, in, out, false, tracker.Link(in.Id, out.Id), 0)
}

// CloneGenome creates a deep copy of a genome with a new ID.
func CloneGenome(genome *genetics.Genome, newID int) (*genetics.Genome, error) {
	if genome == nil {
		return nil, fmt.Errorf("clone: %w", ErrNilGenome)
	}

	nodeMap := make(map[int]*network.NNode, len(genome.Nodes))
	newNodes := make([]*network.NNode, 0, len(genome.Nodes))
	for _, node := range genome.Nodes {
		newNode := copyNode(node)
		nodeMap[node.Id] = newNode
		newNodes = append(newNodes, newNode)
	}

	newGenes := make([]*genetics.Gene, 0, len(genome.Genes))
	for _, gene := range genome.Genes {
		inNode := nodeMap[gene.Link.InNode.Id]
		outNode := nodeMap[gene.Link.OutNode.Id]
		if inNode == nil || outNode == nil {
			continue
		}
		newGenes = append(newGenes, copyGene(gene, inNode, outNode))
	}

	return genetics.NewGenome(newID, nil, newNodes, newGenes), nil
}

func copyNode(node *network.NNode) *network.NNode {
	newNode := network.NewNNode(node.Id, node.NeuronType)
	newNode.ActivationType = node.ActivationType
	return newNode
}

func copyGene(gene *genetics.Gene, in, out *network.NNode) *genetics.Gene {
	g := genetics.NewGeneWithTrait(
		nil,
		gene.Link.ConnectionWeight,
		in,
		out,
		gene.Link.IsRecurrent,
		gene.InnovationNum,
		gene.MutationNum,
	)
	g.IsEnabled = gene.IsEnabled
	return g
}

// nodeByID finds a node in the genome, or nil.
func nodeByID(g *genetics.Genome, id int) *network.NNode {
	for _, n := range g.Nodes {
		if n.Id == id {
			return n
		}
	}
	return nil
}

func sortGenes(genes []*genetics.Gene) {
	sort.Slice(genes, func(i, j int) bool { return genes[i].InnovationNum < genes[j].InnovationNum })
}

func sortNodes(nodes []*network.NNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Id < nodes[j].Id })
}

// EnabledGeneCount returns the number of enabled edges.
func EnabledGeneCount(g *genetics.Genome) int {
	n := 0
	for _, gene := range g.Genes {
		if gene.IsEnabled {
			n++
		}
	}
	return n
}

// HiddenNodeCount returns the number of hidden nodes.
func HiddenNodeCount(g *genetics.Genome) int {
	n := 0
	for _, node := range g.Nodes {
		if node.NeuronType == network.HiddenNeuron {
			n++
		}
	}
	return n
}
