package neural

import (
	"fmt"
	"math"

	"github.com/yaricom/goNEAT/v4/neat"
	"github.com/yaricom/goNEAT/v4/neat/genetics"
	neatmath "github.com/yaricom/goNEAT/v4/neat/math"
	"github.com/yaricom/goNEAT/v4/neat/network"

	"github.com/pthm-cable/forge/rng"
)

const (
	maxLinkAttempts   = 20   // attempts to find an unconnected acyclic pair
	disabledInherit   = 0.75 // chance a gene disabled in either parent stays disabled
	initialWeightSpan = 2.0  // resampled weights are uniform in [-span, span]
)

// CrossoverGenomes performs NEAT crossover. Genes are aligned by innovation
// number; matching genes take their weight from either parent at random,
// disjoint and excess genes come from the fitter parent, or from both at
// random when fitness is equal.
func CrossoverGenomes(parent1, parent2 *genetics.Genome, fitness1, fitness2 float64, childID int, src rng.Source) (*genetics.Genome, error) {
	if parent1 == nil || parent2 == nil {
		return nil, fmt.Errorf("crossover: %w", ErrNilGenome)
	}

	primary, secondary := parent1, parent2
	if fitness2 > fitness1 {
		primary, secondary = parent2, parent1
	}
	equal := fitness1 == fitness2

	secondaryGenes := make(map[int64]*genetics.Gene, len(secondary.Genes))
	for _, gene := range secondary.Genes {
		secondaryGenes[gene.InnovationNum] = gene
	}

	childNodes := make(map[int]*network.NNode)
	for _, node := range primary.Nodes {
		childNodes[node.Id] = copyNode(node)
	}
	for _, node := range secondary.Nodes {
		if _, ok := childNodes[node.Id]; !ok {
			childNodes[node.Id] = copyNode(node)
		}
	}

	// Walk both parents in innovation order.
	p := append([]*genetics.Gene(nil), primary.Genes...)
	s := append([]*genetics.Gene(nil), secondary.Genes...)
	sortGenes(p)
	sortGenes(s)

	childGenes := make([]*genetics.Gene, 0, len(p))
	seen := make(map[int64]bool, len(p)+len(s))
	used := make(map[int]bool)
	add := func(gene *genetics.Gene, weight float64, enabled bool) {
		in := childNodes[gene.Link.InNode.Id]
		out := childNodes[gene.Link.OutNode.Id]
		if in == nil || out == nil {
			return
		}
		g := copyGene(gene, in, out)
		g.Link.ConnectionWeight = weight
		g.IsEnabled = enabled
		childGenes = append(childGenes, g)
		used[in.Id] = true
		used[out.Id] = true
	}

	for _, pGene := range p {
		seen[pGene.InnovationNum] = true
		sGene, matching := secondaryGenes[pGene.InnovationNum]
		switch {
		case matching:
			weight := pGene.Link.ConnectionWeight
			if src.Float32() < 0.5 {
				weight = sGene.Link.ConnectionWeight
			}
			enabled := true
			if !pGene.IsEnabled || !sGene.IsEnabled {
				enabled = src.Float32() >= disabledInherit
			}
			add(pGene, weight, enabled)
		case !equal || src.Float32() < 0.5:
			add(pGene, pGene.Link.ConnectionWeight, pGene.IsEnabled)
		}
	}
	if equal {
		for _, sGene := range s {
			if seen[sGene.InnovationNum] {
				continue
			}
			if src.Float32() < 0.5 {
				add(sGene, sGene.Link.ConnectionWeight, sGene.IsEnabled)
			}
		}
	}
	sortGenes(childGenes)

	// IO nodes are always kept; hidden nodes only when an inherited gene
	// references them.
	nodes := make([]*network.NNode, 0, len(childNodes))
	for id, node := range childNodes {
		if node.NeuronType == network.HiddenNeuron && !used[id] {
			continue
		}
		nodes = append(nodes, node)
	}
	sortNodes(nodes)

	return genetics.NewGenome(childID, nil, nodes, childGenes), nil
}

// MutateGenome applies the structural and weight operators. Each operator
// fires independently with its configured probability.
func MutateGenome(genome *genetics.Genome, params Params, tracker *InnovationTracker, src rng.Source) (bool, error) {
	if genome == nil {
		return false, fmt.Errorf("mutate: %w", ErrNilGenome)
	}
	opts := params.Options
	mutated := false

	if mutateWeights(genome, params, src) {
		mutated = true
	}
	if src.Float64() < opts.MutateAddLinkProb {
		if addLink(genome, tracker, src) {
			mutated = true
		}
	}
	if src.Float64() < opts.MutateAddNodeProb {
		if addNode(genome, tracker, src) {
			mutated = true
		}
	}
	if src.Float64() < opts.MutateToggleEnableProb {
		if toggleEnable(genome, src) {
			mutated = true
		}
	}
	return mutated, nil
}

// mutateWeights perturbs each edge with probability MutateLinkWeightsProb.
// A share WeightResampleProb of the perturbed edges is resampled instead.
func mutateWeights(genome *genetics.Genome, params Params, src rng.Source) bool {
	changed := false
	for _, gene := range genome.Genes {
		if src.Float64() >= params.MutateLinkWeightsProb {
			continue
		}
		if src.Float64() < params.WeightResampleProb {
			gene.Link.ConnectionWeight = (src.Float64()*2 - 1) * initialWeightSpan
		} else {
			gene.Link.ConnectionWeight += src.NormFloat64() * params.WeightMutPower
		}
		gene.Link.ConnectionWeight = clampWeight(gene.Link.ConnectionWeight, params.MaxWeight)
		changed = true
	}
	return changed
}

// clampWeight clamps a connection weight to [-limit, limit].
func clampWeight(w, limit float64) float64 {
	if limit <= 0 {
		return w
	}
	if w > limit {
		return limit
	}
	if w < -limit {
		return -limit
	}
	return w
}

func addNode(genome *genetics.Genome, tracker *InnovationTracker, src rng.Source) bool {
	enabledGenes := make([]*genetics.Gene, 0, len(genome.Genes))
	for _, gene := range genome.Genes {
		if gene.IsEnabled && !gene.Link.IsRecurrent {
			enabledGenes = append(enabledGenes, gene)
		}
	}
	if len(enabledGenes) == 0 {
		return false
	}

	geneToSplit := enabledGenes[src.IntN(len(enabledGenes))]
	geneToSplit.IsEnabled = false

	newNodeID := tracker.SplitNode(geneToSplit.InnovationNum)
	if nodeByID(genome, newNodeID) != nil {
		// The same edge was split before in this lineage.
		newNodeID = tracker.FreshNode()
	}
	newNode := network.NewNNode(newNodeID, network.HiddenNeuron)
	newNode.ActivationType = hiddenActivators[src.IntN(len(hiddenActivators))]

	in := geneToSplit.Link.InNode
	out := geneToSplit.Link.OutNode
	gene1 := genetics.NewGeneWithTrait(nil, 1.0, in, newNode, false, tracker.Link(in.Id, newNodeID), 0)
	gene2 := genetics.NewGeneWithTrait(nil, geneToSplit.Link.ConnectionWeight, newNode, out, false,
		tracker.Link(newNodeID, out.Id), 0)

	genome.Nodes = append(genome.Nodes, newNode)
	sortNodes(genome.Nodes)
	genome.Genes = append(genome.Genes, gene1, gene2)
	sortGenes(genome.Genes)
	return true
}

var hiddenActivators = []neatmath.NodeActivationType{
	neatmath.SigmoidSteepenedActivation,
	neatmath.TanhActivation,
}

// addLink connects two unconnected nodes. Edges that would close a cycle
// are rejected.
func addLink(genome *genetics.Genome, tracker *InnovationTracker, src rng.Source) bool {
	sources := make([]*network.NNode, 0, len(genome.Nodes))
	targets := make([]*network.NNode, 0, len(genome.Nodes))
	for _, node := range genome.Nodes {
		switch node.NeuronType {
		case network.InputNeuron, network.BiasNeuron:
			sources = append(sources, node)
		case network.OutputNeuron:
			targets = append(targets, node)
		default:
			sources = append(sources, node)
			targets = append(targets, node)
		}
	}
	if len(sources) == 0 || len(targets) == 0 {
		return false
	}

	existing := make(map[int64]bool, len(genome.Genes))
	forward := make(map[int][]int)
	for _, gene := range genome.Genes {
		in, out := gene.Link.InNode.Id, gene.Link.OutNode.Id
		existing[connectionKey(in, out)] = true
		if !gene.Link.IsRecurrent {
			forward[in] = append(forward[in], out)
		}
	}

	for attempt := 0; attempt < maxLinkAttempts; attempt++ {
		source := sources[src.IntN(len(sources))]
		target := targets[src.IntN(len(targets))]
		if source.Id == target.Id || existing[connectionKey(source.Id, target.Id)] {
			continue
		}
		if reaches(forward, target.Id, source.Id) {
			continue
		}
		gene := genetics.NewGeneWithTrait(
			nil,
			(src.Float64()*2-1)*initialWeightSpan,
			source,
			target,
			false,
			tracker.Link(source.Id, target.Id),
			0,
		)
		genome.Genes = append(genome.Genes, gene)
		sortGenes(genome.Genes)
		return true
	}
	return false
}

// reaches reports whether to is reachable from from.
func reaches(adj map[int][]int, from, to int) bool {
	if from == to {
		return true
	}
	seen := map[int]bool{from: true}
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj[n] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// toggleEnable flips a random edge. Disabling the last enabled edge into an
// output is undone.
func toggleEnable(genome *genetics.Genome, src rng.Source) bool {
	if len(genome.Genes) == 0 {
		return false
	}

	gene := genome.Genes[src.IntN(len(genome.Genes))]
	gene.IsEnabled = !gene.IsEnabled
	if gene.IsEnabled || gene.Link.OutNode.NeuronType != network.OutputNeuron {
		return true
	}
	for _, g := range genome.Genes {
		if g.IsEnabled && g.Link.OutNode.Id == gene.Link.OutNode.Id {
			return true
		}
	}
	gene.IsEnabled = true
	return false
}

// CreateOffspring builds a child genome. With a nil second parent the
// first is cloned (asexual reproduction); otherwise the parents are
// crossed over. The child is always mutated.
func CreateOffspring(
	parent1, parent2 *genetics.Genome,
	fitness1, fitness2 float64,
	tracker *InnovationTracker,
	params Params,
	src rng.Source,
) (*genetics.Genome, error) {
	var (
		child *genetics.Genome
		err   error
	)
	id := tracker.NextGenomeID()
	if parent2 == nil {
		child, err = CloneGenome(parent1, id)
	} else {
		child, err = CrossoverGenomes(parent1, parent2, fitness1, fitness2, id, src)
	}
	if err != nil {
		return nil, fmt.Errorf("offspring: %w", err)
	}
	if _, err := MutateGenome(child, params, tracker, src); err != nil {
		return nil, fmt.Errorf("offspring: %w", err)
	}
	return child, nil
}

// GenomeCompatibility calculates the NEAT compatibility distance
// c1·E/N + c2·D/N + c3·W̄, with N the size of the larger genome.
func GenomeCompatibility(g1, g2 *genetics.Genome, opts *neat.Options) float64 {
	if g1 == nil || g2 == nil {
		return math.MaxFloat64
	}

	genes1 := make(map[int64]*genetics.Gene, len(g1.Genes))
	maxInnov1 := int64(0)
	for _, gene := range g1.Genes {
		genes1[gene.InnovationNum] = gene
		maxInnov1 = max(maxInnov1, gene.InnovationNum)
	}
	genes2 := make(map[int64]*genetics.Gene, len(g2.Genes))
	maxInnov2 := int64(0)
	for _, gene := range g2.Genes {
		genes2[gene.InnovationNum] = gene
		maxInnov2 = max(maxInnov2, gene.InnovationNum)
	}

	matching, disjoint, excess := 0, 0, 0
	weightDiff := 0.0
	for innov, gene1 := range genes1 {
		if gene2, ok := genes2[innov]; ok {
			matching++
			weightDiff += math.Abs(gene1.Link.ConnectionWeight - gene2.Link.ConnectionWeight)
		} else if innov > maxInnov2 {
			excess++
		} else {
			disjoint++
		}
	}
	for innov := range genes2 {
		if _, ok := genes1[innov]; ok {
			continue
		}
		if innov > maxInnov1 {
			excess++
		} else {
			disjoint++
		}
	}

	n := float64(max(len(g1.Genes), len(g2.Genes), 1))
	avgWeightDiff := 0.0
	if matching > 0 {
		avgWeightDiff = weightDiff / float64(matching)
	}
	return (opts.ExcessCoeff*float64(excess)+opts.DisjointCoeff*float64(disjoint))/n +
		opts.MutdiffCoeff*avgWeightDiff
}
