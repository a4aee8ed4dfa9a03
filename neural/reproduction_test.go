package neural

import (
	"errors"
	"math"
	"testing"

	"github.com/yaricom/goNEAT/v4/neat/genetics"
	"github.com/yaricom/goNEAT/v4/neat/network"

	"github.com/pthm-cable/forge/rng"
)

// quietParams disables every operator so tests can enable one at a time.
func quietParams() Params {
	p := DefaultParams()
	p.MutateLinkWeightsProb = 0
	p.MutateAddLinkProb = 0
	p.MutateAddNodeProb = 0
	p.MutateToggleEnableProb = 0
	return p
}

func innovations(g *genetics.Genome) map[int64]bool {
	set := make(map[int64]bool, len(g.Genes))
	for _, gene := range g.Genes {
		set[gene.InnovationNum] = true
	}
	return set
}

func TestInnovationTrackerReuse(t *testing.T) {
	tr := NewInnovationTracker()

	a := tr.Link(1, firstOutputID)
	b := tr.Link(1, firstOutputID)
	c := tr.Link(2, firstOutputID)
	if a != b {
		t.Errorf("same pair got different innovations: %d, %d", a, b)
	}
	if a == c {
		t.Error("different pairs share an innovation")
	}

	n1 := tr.SplitNode(a)
	n2 := tr.SplitNode(a)
	if n1 != n2 {
		t.Errorf("same split got different node ids: %d, %d", n1, n2)
	}
	if n1 < firstHiddenID {
		t.Errorf("hidden node id %d collides with IO nodes", n1)
	}

	id1, id2 := tr.NextGenomeID(), tr.NextGenomeID()
	if id1 >= id2 {
		t.Errorf("genome ids not increasing: %d, %d", id1, id2)
	}
}

func TestInnovationTrackerObserve(t *testing.T) {
	src := NewInnovationTracker()
	g := CreateBrainGenome(41, 0.5, src, rng.New(2))
	params := quietParams()
	params.MutateAddNodeProb = 1
	MutateGenome(g, params, src, rng.New(3))

	fresh := NewInnovationTracker()
	fresh.Observe(g)

	if id := fresh.NextGenomeID(); id <= 41 {
		t.Errorf("genome id %d not past observed genome", id)
	}
	for _, gene := range g.Genes {
		got := fresh.Link(gene.Link.InNode.Id, gene.Link.OutNode.Id)
		if got != gene.InnovationNum {
			t.Errorf("edge %d->%d: innovation %d, want %d",
				gene.Link.InNode.Id, gene.Link.OutNode.Id, got, gene.InnovationNum)
		}
	}
	if n := fresh.FreshNode(); nodeByID(g, n) != nil {
		t.Errorf("fresh node id %d already used", n)
	}
}

func TestCrossoverGenomes(t *testing.T) {
	tracker := NewInnovationTracker()
	src := rng.New(11)
	parent1 := CreateBrainGenome(1, 0.5, tracker, src)
	parent2 := CreateBrainGenome(2, 0.5, tracker, src)

	child, err := CrossoverGenomes(parent1, parent2, 1.0, 1.0, 3, src)
	if err != nil {
		t.Fatalf("CrossoverGenomes failed: %v", err)
	}
	if child.Id != 3 {
		t.Errorf("expected child ID 3, got %d", child.Id)
	}

	union := innovations(parent1)
	for innov := range innovations(parent2) {
		union[innov] = true
	}
	for _, gene := range child.Genes {
		if !union[gene.InnovationNum] {
			t.Errorf("child gene %d not present in either parent", gene.InnovationNum)
		}
	}
}

func TestCrossoverFitterParentContributesStructure(t *testing.T) {
	tracker := NewInnovationTracker()
	src := rng.New(5)
	fit := CreateBrainGenome(1, 0.4, tracker, src)
	weak := CreateBrainGenome(2, 0.4, tracker, src)

	for trial := 0; trial < 20; trial++ {
		child, err := CrossoverGenomes(weak, fit, 0.1, 5.0, 10+trial, src)
		if err != nil {
			t.Fatalf("CrossoverGenomes failed: %v", err)
		}
		got := innovations(child)
		want := innovations(fit)
		if len(got) != len(want) {
			t.Fatalf("child has %d genes, fitter parent %d", len(got), len(want))
		}
		for innov := range got {
			if !want[innov] {
				t.Errorf("child inherited gene %d from the weaker parent", innov)
			}
		}
	}
}

func TestCrossoverDisabledGeneMostlyStaysDisabled(t *testing.T) {
	tracker := NewInnovationTracker()
	var bias [NumOutputs]float64
	bias[MotorSpeed] = 1
	a := CreateBiasGenome(1, bias, tracker)
	b := CreateBiasGenome(2, bias, tracker)
	a.Genes[0].IsEnabled = false

	src := rng.New(99)
	const trials = 2000
	disabled := 0
	for i := 0; i < trials; i++ {
		child, _ := CrossoverGenomes(a, b, 1, 1, 3, src)
		if !child.Genes[0].IsEnabled {
			disabled++
		}
	}
	rate := float64(disabled) / trials
	if rate < 0.7 || rate > 0.8 {
		t.Errorf("disabled inheritance rate %.3f, want ~0.75", rate)
	}
}

func TestCrossoverNil(t *testing.T) {
	_, err := CrossoverGenomes(nil, nil, 0, 0, 1, rng.New(1))
	if !errors.Is(err, ErrNilGenome) {
		t.Errorf("expected ErrNilGenome, got %v", err)
	}
}

func TestMutateAddNodeSplitsEdge(t *testing.T) {
	tracker := NewInnovationTracker()
	var bias [NumOutputs]float64
	bias[MotorSpeed] = 2
	g := CreateBiasGenome(1, bias, tracker)
	params := quietParams()
	params.MutateAddNodeProb = 1

	mutated, err := MutateGenome(g, params, tracker, rng.New(1))
	if err != nil || !mutated {
		t.Fatalf("MutateGenome: mutated=%v err=%v", mutated, err)
	}
	if HiddenNodeCount(g) != 1 {
		t.Fatalf("expected 1 hidden node, got %d", HiddenNodeCount(g))
	}
	if len(g.Genes) != 3 {
		t.Fatalf("expected 3 genes, got %d", len(g.Genes))
	}

	var original, in, out *genetics.Gene
	for _, gene := range g.Genes {
		switch {
		case gene.Link.OutNode.NeuronType == network.HiddenNeuron:
			in = gene
		case gene.Link.InNode.NeuronType == network.HiddenNeuron:
			out = gene
		default:
			original = gene
		}
	}
	if original == nil || in == nil || out == nil {
		t.Fatal("split did not produce in/out edges")
	}
	if original.IsEnabled {
		t.Error("split edge still enabled")
	}
	if in.Link.ConnectionWeight != 1 {
		t.Errorf("in edge weight %f, want 1", in.Link.ConnectionWeight)
	}
	if out.Link.ConnectionWeight != 2 {
		t.Errorf("out edge weight %f, want 2", out.Link.ConnectionWeight)
	}
}

func TestMutateAddLinkStaysAcyclic(t *testing.T) {
	tracker := NewInnovationTracker()
	src := rng.New(21)
	params := quietParams()
	params.MutateAddLinkProb = 1
	params.MutateAddNodeProb = 0.5

	for g := 0; g < 10; g++ {
		genome := CreateBrainGenome(g+1, 0.1, tracker, src)
		for i := 0; i < 40; i++ {
			if _, err := MutateGenome(genome, params, tracker, src); err != nil {
				t.Fatalf("MutateGenome failed: %v", err)
			}
		}
		if p := NewPhenotype(genome); p.RecurrentCount() != 0 {
			t.Errorf("genome %d gained %d cyclic edges", g, p.RecurrentCount())
		}
	}
}

func TestMutateWeightsClamped(t *testing.T) {
	tracker := NewInnovationTracker()
	src := rng.New(4)
	g := CreateBrainGenome(1, 0.5, tracker, src)
	params := quietParams()
	params.MutateLinkWeightsProb = 1
	params.WeightMutPower = 10
	params.MaxWeight = 1

	for i := 0; i < 5; i++ {
		MutateGenome(g, params, tracker, src)
	}
	for _, gene := range g.Genes {
		if math.Abs(gene.Link.ConnectionWeight) > 1 {
			t.Errorf("weight %f exceeds limit", gene.Link.ConnectionWeight)
		}
	}
}

func TestToggleKeepsOutputConnected(t *testing.T) {
	tracker := NewInnovationTracker()
	var bias [NumOutputs]float64
	bias[MotorEat] = 1
	g := CreateBiasGenome(1, bias, tracker)

	if toggleEnable(g, rng.New(1)) {
		t.Error("toggle reported a change on the last edge into an output")
	}
	if !g.Genes[0].IsEnabled {
		t.Error("last edge into output was disabled")
	}
}

func TestCloneGenome(t *testing.T) {
	tracker := NewInnovationTracker()
	original := CreateBrainGenome(1, 0.5, tracker, rng.New(8))

	clone, err := CloneGenome(original, 2)
	if err != nil {
		t.Fatalf("CloneGenome failed: %v", err)
	}
	if clone.Id != 2 {
		t.Errorf("expected clone ID 2, got %d", clone.Id)
	}
	if len(clone.Genes) != len(original.Genes) {
		t.Fatalf("clone has %d genes, want %d", len(clone.Genes), len(original.Genes))
	}

	clone.Genes[0].Link.ConnectionWeight += 1
	if clone.Genes[0].Link.ConnectionWeight == original.Genes[0].Link.ConnectionWeight {
		t.Error("clone shares links with the original")
	}
}

func TestCreateOffspring(t *testing.T) {
	tracker := NewInnovationTracker()
	src := rng.New(13)
	params := DefaultParams()
	a := CreateBrainGenome(tracker.NextGenomeID(), 0.3, tracker, src)
	b := CreateBrainGenome(tracker.NextGenomeID(), 0.3, tracker, src)

	sexual, err := CreateOffspring(a, b, 1, 2, tracker, params, src)
	if err != nil {
		t.Fatalf("sexual offspring failed: %v", err)
	}
	asexual, err := CreateOffspring(a, nil, 1, 0, tracker, params, src)
	if err != nil {
		t.Fatalf("asexual offspring failed: %v", err)
	}
	if sexual.Id == asexual.Id || sexual.Id == a.Id || sexual.Id == b.Id {
		t.Errorf("offspring ids not unique: %d %d", sexual.Id, asexual.Id)
	}
	if _, err := NewBrain(sexual); err != nil {
		t.Errorf("offspring brain: %v", err)
	}
}

func TestGenomeCompatibility(t *testing.T) {
	opts := DefaultNEATOptions()
	nodes := newIONodes()
	bias := nodes[NumInputs]
	out0, out1, out2 := nodes[NumInputs+1], nodes[NumInputs+2], nodes[NumInputs+3]

	g1 := genetics.NewGenome(1, nil, nodes, []*genetics.Gene{
		genetics.NewGeneWithTrait(nil, 1, bias, out0, false, 1, 0),
		genetics.NewGeneWithTrait(nil, 1, bias, out1, false, 2, 0),
	})
	g2 := genetics.NewGenome(2, nil, nodes, []*genetics.Gene{
		genetics.NewGeneWithTrait(nil, 0.5, bias, out0, false, 1, 0),
		genetics.NewGeneWithTrait(nil, 1, bias, out2, false, 3, 0),
	})

	if d := GenomeCompatibility(g1, g1, opts); d != 0 {
		t.Errorf("self distance = %f, want 0", d)
	}

	// One disjoint (2), one excess (3), weight diff 0.5, N = 2.
	want := (opts.ExcessCoeff+opts.DisjointCoeff)/2 + opts.MutdiffCoeff*0.5
	if d := GenomeCompatibility(g1, g2, opts); math.Abs(d-want) > 1e-9 {
		t.Errorf("distance = %f, want %f", d, want)
	}
	if d := GenomeCompatibility(g1, nil, opts); d != math.MaxFloat64 {
		t.Errorf("nil distance = %f", d)
	}
}

func BenchmarkCrossoverGenomes(b *testing.B) {
	tracker := NewInnovationTracker()
	src := rng.New(1)
	p1 := CreateBrainGenome(1, 0.5, tracker, src)
	p2 := CreateBrainGenome(2, 0.5, tracker, src)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = CrossoverGenomes(p1, p2, 1.0, 1.0, i, src)
	}
}
