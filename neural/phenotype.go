package neural

import (
	"math"
	"sort"

	"github.com/yaricom/goNEAT/v4/neat/genetics"
	neatmath "github.com/yaricom/goNEAT/v4/neat/math"
	"github.com/yaricom/goNEAT/v4/neat/network"
)

type nodeKind uint8

const (
	kindInput nodeKind = iota
	kindBias
	kindHidden
	kindOutput
)

type activation uint8

const (
	actIdentity activation = iota
	actTanh
	actSigmoid
)

type link struct {
	src int32
	w   float32
}

// Phenotype is the flattened evaluation plan of a genome. Nodes are kept
// in slots ordered by node id. Feed-forward edges are evaluated in a fixed
// topological order; recurrent edges read the previous pass's activations.
type Phenotype struct {
	ids   []int
	kinds []nodeKind
	acts  []activation
	order []int32

	ffStart  []int32
	ff       []link
	recStart []int32
	rec      []link

	inputs  [NumInputs]int32
	bias    int32
	outputs [NumOutputs]int32

	cur  []float32
	prev []float32

	inert bool
}

// NewPhenotype builds the evaluation plan for g. Edges flagged recurrent,
// self loops, and edges that close a cycle are evaluated with a one-pass
// delay.
func NewPhenotype(g *genetics.Genome) *Phenotype {
	nodes := make([]*network.NNode, len(g.Nodes))
	copy(nodes, g.Nodes)
	sortNodes(nodes)

	n := len(nodes)
	p := &Phenotype{
		ids:   make([]int, n),
		kinds: make([]nodeKind, n),
		acts:  make([]activation, n),
		cur:   make([]float32, n),
		prev:  make([]float32, n),
		bias:  -1,
	}
	for i := range p.inputs {
		p.inputs[i] = -1
	}
	for i := range p.outputs {
		p.outputs[i] = -1
	}

	slot := make(map[int]int32, n)
	nIn, nOut := 0, 0
	for i, node := range nodes {
		slot[node.Id] = int32(i)
		p.ids[i] = node.Id
		switch node.NeuronType {
		case network.InputNeuron:
			p.kinds[i] = kindInput
			if nIn < NumInputs {
				p.inputs[nIn] = int32(i)
			}
			nIn++
		case network.BiasNeuron:
			p.kinds[i] = kindBias
			if p.bias < 0 {
				p.bias = int32(i)
			}
		case network.OutputNeuron:
			p.kinds[i] = kindOutput
			p.acts[i] = actTanh
			if nOut < NumOutputs {
				p.outputs[nOut] = int32(i)
			}
			nOut++
		default:
			p.kinds[i] = kindHidden
			p.acts[i] = hiddenActivation(node.ActivationType)
		}
	}

	type edge struct {
		from, to int32
		w        float32
		rec      bool
	}
	edges := make([]edge, 0, len(g.Genes))
	for _, gene := range g.Genes {
		if !gene.IsEnabled {
			continue
		}
		from, ok1 := slot[gene.Link.InNode.Id]
		to, ok2 := slot[gene.Link.OutNode.Id]
		if !ok1 || !ok2 {
			continue
		}
		if k := p.kinds[to]; k == kindInput || k == kindBias {
			continue
		}
		w := float32(gene.Link.ConnectionWeight)
		if w != w {
			w = 0
		}
		edges = append(edges, edge{from: from, to: to, w: w, rec: gene.Link.IsRecurrent || from == to})
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].to != edges[j].to {
			return edges[i].to < edges[j].to
		}
		return edges[i].from < edges[j].from
	})

	// Break remaining cycles: any feed-forward edge into a node still on the
	// DFS stack becomes recurrent.
	out := make([][]int, n)
	for i, e := range edges {
		if !e.rec {
			out[e.from] = append(out[e.from], i)
		}
	}
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, n)
	type frame struct {
		node int32
		next int
	}
	stack := make([]frame, 0, n)
	for root := int32(0); root < int32(n); root++ {
		if color[root] != white {
			continue
		}
		color[root] = grey
		stack = append(stack[:0], frame{node: root})
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(out[top.node]) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			ei := out[top.node][top.next]
			top.next++
			to := edges[ei].to
			switch color[to] {
			case grey:
				edges[ei].rec = true
			case white:
				color[to] = grey
				stack = append(stack, frame{node: to})
			}
		}
	}

	// Kahn ordering over the acyclic remainder.
	indeg := make([]int, n)
	for i := range out {
		out[i] = out[i][:0]
	}
	for i, e := range edges {
		if e.rec {
			continue
		}
		out[e.from] = append(out[e.from], i)
		indeg[e.to]++
	}
	queue := make([]int32, 0, n)
	for i := int32(0); i < int32(n); i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	for head := 0; head < len(queue); head++ {
		s := queue[head]
		if k := p.kinds[s]; k == kindHidden || k == kindOutput {
			p.order = append(p.order, s)
		}
		for _, ei := range out[s] {
			to := edges[ei].to
			indeg[to]--
			if indeg[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	p.ffStart = make([]int32, n+1)
	p.recStart = make([]int32, n+1)
	for _, e := range edges {
		if e.rec {
			p.recStart[e.to+1]++
		} else {
			p.ffStart[e.to+1]++
		}
	}
	for i := 0; i < n; i++ {
		p.ffStart[i+1] += p.ffStart[i]
		p.recStart[i+1] += p.recStart[i]
	}
	p.ff = make([]link, p.ffStart[n])
	p.rec = make([]link, p.recStart[n])
	ffFill := make([]int32, n)
	recFill := make([]int32, n)
	for _, e := range edges {
		if e.rec {
			p.rec[p.recStart[e.to]+recFill[e.to]] = link{src: e.from, w: e.w}
			recFill[e.to]++
		} else {
			p.ff[p.ffStart[e.to]+ffFill[e.to]] = link{src: e.from, w: e.w}
			ffFill[e.to]++
		}
	}

	adj := make([][]int32, n)
	for _, e := range edges {
		adj[e.from] = append(adj[e.from], e.to)
	}
	p.inert = !p.reachesOutput(adj)
	return p
}

// reachesOutput reports whether any input or bias node has a path to an
// output over enabled edges.
func (p *Phenotype) reachesOutput(adj [][]int32) bool {
	seen := make([]bool, len(p.ids))
	queue := make([]int32, 0, len(p.ids))
	for i, k := range p.kinds {
		if k == kindInput || k == kindBias {
			seen[i] = true
			queue = append(queue, int32(i))
		}
	}
	for head := 0; head < len(queue); head++ {
		for _, to := range adj[queue[head]] {
			if seen[to] {
				continue
			}
			if p.kinds[to] == kindOutput {
				return true
			}
			seen[to] = true
			queue = append(queue, to)
		}
	}
	return false
}

// Evaluate runs one forward pass and returns the clamped motor vector.
func (p *Phenotype) Evaluate(in *Inputs) Motor {
	if p.inert {
		return Motor{}
	}
	for i, s := range p.inputs {
		if s >= 0 {
			p.cur[s] = in[i]
		}
	}
	if p.bias >= 0 {
		p.cur[p.bias] = 1
	}
	for _, s := range p.order {
		var sum float32
		for _, l := range p.ff[p.ffStart[s]:p.ffStart[s+1]] {
			sum += l.w * p.cur[l.src]
		}
		for _, l := range p.rec[p.recStart[s]:p.recStart[s+1]] {
			sum += l.w * p.prev[l.src]
		}
		p.cur[s] = activate(p.acts[s], sum)
	}
	var raw [NumOutputs]float32
	for i, s := range p.outputs {
		if s >= 0 {
			raw[i] = p.cur[s]
		}
	}
	copy(p.prev, p.cur)
	return MotorFromRaw(raw)
}

// Inert reports whether no input reaches an output.
func (p *Phenotype) Inert() bool { return p.inert }

// Reset clears the recurrent state.
func (p *Phenotype) Reset() {
	clear(p.cur)
	clear(p.prev)
}

// NodeCount returns the number of nodes in the plan.
func (p *Phenotype) NodeCount() int { return len(p.ids) }

// LinkCount returns the number of enabled edges in the plan.
func (p *Phenotype) LinkCount() int { return len(p.ff) + len(p.rec) }

// RecurrentCount returns the number of delayed edges.
func (p *Phenotype) RecurrentCount() int { return len(p.rec) }

func hiddenActivation(t neatmath.NodeActivationType) activation {
	switch t {
	case neatmath.SigmoidSteepenedActivation:
		return actSigmoid
	default:
		return actTanh
	}
}

func activate(a activation, x float32) float32 {
	switch a {
	case actSigmoid:
		return float32(1 / (1 + math.Exp(-4.924273*float64(x))))
	case actTanh:
		return float32(math.Tanh(float64(x)))
	default:
		return x
	}
}
