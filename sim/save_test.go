package sim

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pthm-cable/forge/telemetry"
	"github.com/pthm-cable/forge/world"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.GPU.Enabled = false
	src := newPopulatedSim(t, cfg, 21, 60)
	src.Run(60)

	path := filepath.Join(t.TempDir(), "world.forge")
	if err := src.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := newPopulatedSim(t, cfg, 99, 10)
	if err := dst.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if dst.Frame() != src.Frame() {
		t.Errorf("frame = %d, want %d", dst.Frame(), src.Frame())
	}
	if dst.SimTime() != src.SimTime() {
		t.Errorf("sim time = %g, want %g", dst.SimTime(), src.SimTime())
	}
	if dst.Food().Len() != src.Food().Len() {
		t.Errorf("food patches = %d, want %d", dst.Food().Len(), src.Food().Len())
	}

	ids := src.AgentIDs()
	got := dst.AgentIDs()
	if len(got) != len(ids) {
		t.Fatalf("loaded %d agents, want %d", len(got), len(ids))
	}
	for i, id := range ids {
		if got[i] != id {
			t.Fatalf("agent %d: id %d, want %d", i, got[i], id)
		}
		want, have := mustAgent(t, src, id), mustAgent(t, dst, id)
		if have.Species != want.Species {
			t.Errorf("agent %d species = %v, want %v", id, have.Species, want.Species)
		}
		if have.Pos != want.Pos {
			t.Errorf("agent %d position = %+v, want %+v", id, have.Pos, want.Pos)
		}
		if have.Phys.Energy != want.Phys.Energy {
			t.Errorf("agent %d energy = %g, want %g", id, have.Phys.Energy, want.Phys.Energy)
		}
		if have.Lineage.Generation != want.Lineage.Generation {
			t.Errorf("agent %d generation = %d, want %d", id, have.Lineage.Generation, want.Lineage.Generation)
		}
		if have.HasBrain != want.HasBrain || have.Nodes != want.Nodes || have.Links != want.Links {
			t.Errorf("agent %d brain = %d/%d, want %d/%d", id, have.Nodes, have.Links, want.Nodes, want.Links)
		}
	}
	if n := len(dst.Snapshot().Agents); n != len(ids) {
		t.Errorf("snapshot after load holds %d agents, want %d", n, len(ids))
	}

	// Fresh spawns never reuse a restored id.
	fresh := mustSpawn(t, dst, SpawnSpec{Brainless: true})
	if n := len(ids); n > 0 && fresh <= ids[n-1] {
		t.Errorf("spawn after load got id %d, not above restored %d", fresh, ids[n-1])
	}
	dst.Run(30)
	if dst.Frame() != src.Frame()+30 {
		t.Errorf("frame = %d after 30 more steps, want %d", dst.Frame(), src.Frame()+30)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")
	mustSpawn(t, s, SpawnSpec{Brainless: true})
	mustSpawn(t, s, SpawnSpec{Brainless: true})

	path := filepath.Join(t.TempDir(), "junk.forge")
	junk := make([]byte, 64)
	for i := range junk {
		junk[i] = 'X'
	}
	if err := os.WriteFile(path, junk, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Load(path); !errors.Is(err, telemetry.ErrBadMagic) {
		t.Errorf("Load(junk) err = %v, want ErrBadMagic", err)
	}
	if err := s.Load(filepath.Join(t.TempDir(), "missing.forge")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
	if s.Population() != 2 {
		t.Errorf("population = %d after failed loads, want 2", s.Population())
	}
}

func TestSaveLoadCommands(t *testing.T) {
	cfg := testConfig(t)
	s := newFlatSim(t, cfg, "medium")
	id := mustSpawn(t, s, SpawnSpec{Brainless: true, Energy: 50})
	s.Run(5)

	path := filepath.Join(t.TempDir(), "cmd.forge")
	reply := make(chan error, 1)
	saved := mustAgent(t, s, id)
	s.Commands().Push(world.Command{Kind: world.CmdSave, Path: path, Reply: reply})
	s.Step()
	if err := waitReply(t, reply); err != nil {
		t.Fatalf("save command: %v", err)
	}

	s.Run(20)
	mustSpawn(t, s, SpawnSpec{Brainless: true})

	s.Commands().Push(world.Command{Kind: world.CmdLoad, Path: path, Reply: reply})
	s.Step()
	if err := waitReply(t, reply); err != nil {
		t.Fatalf("load command: %v", err)
	}
	// The load is applied before the frame runs, so one frame has passed.
	if s.Population() != 1 {
		t.Fatalf("population = %d after load, want 1", s.Population())
	}
	if a := mustAgent(t, s, id); a.Phys.Energy >= saved.Phys.Energy || a.Phys.Energy < saved.Phys.Energy-1 {
		t.Errorf("energy after load = %g, want just below the saved %g", a.Phys.Energy, saved.Phys.Energy)
	}
	if s.Frame() != 6 {
		t.Errorf("frame = %d after load, want 6", s.Frame())
	}
}

func waitReply(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
		return nil
	}
}
