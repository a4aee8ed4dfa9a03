package telemetry

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/world"
)

func sampleSave() *SaveFile {
	traits := components.NeutralTraits()
	traits.A[components.TraitSpeed] = 1.2
	return &SaveFile{
		Header: SaveHeader{
			Timestamp: time.Unix(1700000000, 0),
			RNGState:  []byte{1, 2, 3, 4, 5, 6, 7, 8},
			SimTime:   12.5,
			Frame:     750,
		},
		Agents: []AgentRecord{
			{
				ID: 7, Species: components.SpeciesHunter,
				Pos: components.Position{X: 1, Y: 2, Z: 3}, Vel: components.Velocity{X: 0.5},
				Heading: 1.25, Energy: 40, MaxEnergy: 100, Health: 90, MaxHealth: 100, Age: 33,
				Generation: 4, Parents: [2]uint64{2, 3}, Clade: 5, Kills: 1, Hybrid: true,
				Traits: traits, Genome: []byte("genome"), BrainState: []float32{0.1, -0.2},
			},
			{ID: 8, Species: components.SpeciesGrazer, Traits: components.NeutralTraits()},
		},
		Food: []FoodRecord{
			{X: 4, Z: -4, Kind: world.FoodAlgae, Residual: 3, Capacity: 10},
		},
		Corpses: []CorpseRecord{
			{X: 9, Z: 9, Corpse: components.Corpse{Biomass: 12, Initial: 20, Source: components.SpeciesApex}},
		},
		World: WorldRecord{TerrainSeed: 99, DayPhase: 0.25, NextID: 9},
	}
}

func TestSaveRoundTrip(t *testing.T) {
	in := sampleSave()
	var buf bytes.Buffer
	if err := WriteSave(&buf, in); err != nil {
		t.Fatalf("WriteSave: %v", err)
	}
	out, err := ReadSave(&buf)
	if err != nil {
		t.Fatalf("ReadSave: %v", err)
	}

	if out.Header.Version != SaveVersion || out.Header.AgentCount != 2 || out.Header.FoodCount != 1 {
		t.Errorf("header = %+v", out.Header)
	}
	if !out.Header.Timestamp.Equal(in.Header.Timestamp) || out.Header.Frame != 750 || out.Header.SimTime != 12.5 {
		t.Errorf("header times = %+v", out.Header)
	}
	if !bytes.Equal(out.Header.RNGState, in.Header.RNGState) {
		t.Errorf("rng state = %v", out.Header.RNGState)
	}

	a := out.Agents[0]
	want := in.Agents[0]
	if a.ID != want.ID || a.Species != want.Species || a.Pos != want.Pos || a.Vel != want.Vel ||
		a.Generation != want.Generation || a.Parents != want.Parents || !a.Hybrid || a.Traits != want.Traits {
		t.Errorf("agent = %+v, want %+v", a, want)
	}
	if string(a.Genome) != "genome" || len(a.BrainState) != 2 || a.BrainState[1] != -0.2 {
		t.Errorf("agent blobs = %q %v", a.Genome, a.BrainState)
	}
	if out.Agents[1].Genome != nil || out.Agents[1].BrainState != nil {
		t.Error("brainless agent gained blobs")
	}
	if out.Food[0] != in.Food[0] || out.Corpses[0] != in.Corpses[0] || out.World != in.World {
		t.Errorf("food %+v corpses %+v world %+v", out.Food, out.Corpses, out.World)
	}
}

func TestReadSaveRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSave(&buf, sampleSave()); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	copy(data, "JUNK")
	if _, err := ReadSave(bytes.NewReader(data)); !errors.Is(err, ErrBadMagic) {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}
}

func TestReadSaveRejectsFutureVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSave(&buf, sampleSave()); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	// Version follows the 4-byte magic, little-endian.
	data[4], data[5] = 0xff, 0x00
	if _, err := ReadSave(bytes.NewReader(data)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestReadSaveTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSave(&buf, sampleSave()); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	for _, n := range []int{0, 3, 20, len(data) / 2, len(data) - 1} {
		if _, err := ReadSave(bytes.NewReader(data[:n])); !errors.Is(err, ErrTruncated) {
			t.Errorf("cut at %d: err = %v, want ErrTruncated", n, err)
		}
	}
}

func TestSaveToFileAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "world.frge")
	if err := SaveToFile(path, sampleSave()); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
	f, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if len(f.Agents) != 2 || f.World.TerrainSeed != 99 {
		t.Errorf("loaded %+v", f)
	}
}
