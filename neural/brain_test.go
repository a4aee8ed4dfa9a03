package neural

import (
	"math"
	"testing"

	"github.com/yaricom/goNEAT/v4/neat/genetics"
	neatmath "github.com/yaricom/goNEAT/v4/neat/math"
	"github.com/yaricom/goNEAT/v4/neat/network"

	"github.com/pthm-cable/forge/rng"
)

// offBias drives every unsigned slot to zero and leaves signed slots at 0.
func offBias() [NumOutputs]float64 {
	var b [NumOutputs]float64
	for i := range b {
		if !signedMotor(i) {
			b[i] = -3
		}
	}
	return b
}

func TestCreateBrainGenome(t *testing.T) {
	tracker := NewInnovationTracker()
	genome := CreateBrainGenome(1, 0.1, tracker, rng.New(7))

	if genome.Id != 1 {
		t.Errorf("expected genome ID 1, got %d", genome.Id)
	}

	expectedNodes := NumInputs + 1 + NumOutputs
	if len(genome.Nodes) != expectedNodes {
		t.Errorf("expected %d nodes, got %d", expectedNodes, len(genome.Nodes))
	}

	for o := 0; o < NumOutputs; o++ {
		id := firstOutputID + o
		found := false
		for _, g := range genome.Genes {
			if g.Link.OutNode.Id == id {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("output %d has no incoming edge", o)
		}
	}
}

func TestBiasGenomeMotor(t *testing.T) {
	bias := offBias()
	bias[MotorSpeed] = 3
	bias[MotorSocial] = -3
	brain, err := NewBrain(CreateBiasGenome(1, bias, NewInnovationTracker()))
	if err != nil {
		t.Fatalf("NewBrain failed: %v", err)
	}

	var in Inputs
	in.Reset()
	m := brain.Think(&in)

	if m.Speed() < 0.99 {
		t.Errorf("speed = %f, want ~1", m.Speed())
	}
	if m.Attack() > 0.01 {
		t.Errorf("attack = %f, want ~0", m.Attack())
	}
	if m.Social() > -0.99 {
		t.Errorf("social = %f, want ~-1", m.Social())
	}
	if m[MotorTurn] != 0 {
		t.Errorf("unconnected turn = %f, want 0", m[MotorTurn])
	}
	if brain.LastMotor() != m {
		t.Error("LastMotor does not match Think result")
	}
}

func TestInertGenomeZeroMotor(t *testing.T) {
	nodes := newIONodes()
	hidden := network.NewNNode(firstHiddenID, network.HiddenNeuron)
	hidden.ActivationType = neatmath.TanhActivation
	nodes = append(nodes, hidden)
	// hidden -> output with nothing feeding hidden.
	genes := []*genetics.Gene{
		genetics.NewGeneWithTrait(nil, 1, hidden, nodes[NumInputs+1], false, 1, 0),
	}
	brain, err := NewBrain(genetics.NewGenome(1, nil, nodes, genes))
	if err != nil {
		t.Fatalf("NewBrain failed: %v", err)
	}
	if !brain.Inert() {
		t.Fatal("expected inert brain")
	}

	var in Inputs
	for i := range in {
		in[i] = 1
	}
	if m := brain.Think(&in); m != (Motor{}) {
		t.Errorf("inert brain produced %v", m)
	}
}

func TestRecurrentEdgeUsesPreviousPass(t *testing.T) {
	nodes := newIONodes()
	bias := nodes[NumInputs]
	turn := nodes[NumInputs+1+MotorTurn]
	genes := []*genetics.Gene{
		genetics.NewGeneWithTrait(nil, 0.5, bias, turn, false, 1, 0),
		genetics.NewGeneWithTrait(nil, 1, turn, turn, true, 2, 0),
	}
	brain, _ := NewBrain(genetics.NewGenome(1, nil, nodes, genes))

	var in Inputs
	first := brain.Think(&in)[MotorTurn]
	second := brain.Think(&in)[MotorTurn]

	want1 := float32(math.Tanh(0.5))
	if math.Abs(float64(first-want1)) > 1e-5 {
		t.Errorf("first pass = %f, want %f", first, want1)
	}
	want2 := float32(math.Tanh(0.5 + float64(want1)))
	if math.Abs(float64(second-want2)) > 1e-5 {
		t.Errorf("second pass = %f, want %f", second, want2)
	}
}

func TestCycleIsBrokenByFixedOrder(t *testing.T) {
	nodes := newIONodes()
	h1 := network.NewNNode(firstHiddenID, network.HiddenNeuron)
	h2 := network.NewNNode(firstHiddenID+1, network.HiddenNeuron)
	h1.ActivationType = neatmath.TanhActivation
	h2.ActivationType = neatmath.SigmoidSteepenedActivation
	nodes = append(nodes, h1, h2)
	out := nodes[NumInputs+1+MotorSpeed]
	genes := []*genetics.Gene{
		genetics.NewGeneWithTrait(nil, 1, nodes[NumInputs], h1, false, 1, 0),
		genetics.NewGeneWithTrait(nil, 1, h1, h2, false, 2, 0),
		genetics.NewGeneWithTrait(nil, 1, h2, h1, false, 3, 0),
		genetics.NewGeneWithTrait(nil, 1, h2, out, false, 4, 0),
	}
	p := NewPhenotype(genetics.NewGenome(1, nil, nodes, genes))

	if p.RecurrentCount() != 1 {
		t.Fatalf("expected one edge delayed to break the cycle, got %d", p.RecurrentCount())
	}
	if p.Inert() {
		t.Fatal("cyclic genome reported inert")
	}

	var in Inputs
	for i := 0; i < 5; i++ {
		m := p.Evaluate(&in)
		for slot, v := range m {
			if math.IsNaN(float64(v)) {
				t.Fatalf("pass %d slot %d is NaN", i, slot)
			}
		}
	}
}

func TestMotorRanges(t *testing.T) {
	tracker := NewInnovationTracker()
	src := rng.New(3)
	for g := 0; g < 20; g++ {
		brain, _ := NewBrain(CreateBrainGenome(g+1, 0.5, tracker, src))
		var in Inputs
		for i := range in {
			in[i] = float32(src.Float64()*2 - 1)
		}
		m := brain.Think(&in)
		for slot, v := range m {
			lo := float32(0)
			if signedMotor(slot) {
				lo = -1
			}
			if v < lo || v > 1 {
				t.Errorf("genome %d slot %d = %f out of range", g, slot, v)
			}
		}
	}
}

func TestBrainStateRestore(t *testing.T) {
	nodes := newIONodes()
	bias := nodes[NumInputs]
	turn := nodes[NumInputs+1+MotorTurn]
	genes := []*genetics.Gene{
		genetics.NewGeneWithTrait(nil, 0.3, bias, turn, false, 1, 0),
		genetics.NewGeneWithTrait(nil, 0.9, turn, turn, true, 2, 0),
	}
	genome := genetics.NewGenome(1, nil, nodes, genes)
	a, _ := NewBrain(genome)
	b, _ := NewBrain(genome)

	var in Inputs
	a.Think(&in)
	a.Think(&in)
	b.RestoreState(a.State())

	if got, want := b.Think(&in), a.Think(&in); got != want {
		t.Errorf("restored brain diverged: %v vs %v", got, want)
	}
}

func TestMotorFromRawSanitisesNaN(t *testing.T) {
	var raw [NumOutputs]float32
	raw[MotorSpeed] = float32(math.NaN())
	raw[MotorTurn] = 5
	m := MotorFromRaw(raw)
	if m.Speed() != 0.5 {
		t.Errorf("NaN speed mapped to %f, want 0.5", m.Speed())
	}
	if m[MotorTurn] != 1 {
		t.Errorf("turn clamped to %f, want 1", m[MotorTurn])
	}
}

func BenchmarkBrainThink(b *testing.B) {
	brain, err := NewBrain(CreateBrainGenome(1, 0.3, NewInnovationTracker(), rng.New(1)))
	if err != nil {
		b.Fatalf("failed to create brain: %v", err)
	}

	var in Inputs
	for i := range in {
		in[i] = float32(i) / float32(NumInputs)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = brain.Think(&in)
	}
}
