package telemetry

import (
	"sync"
	"testing"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/world"
)

func TestEventRingSubscribersHaveIndependentCursors(t *testing.T) {
	r := NewEventRing(16)
	a := r.Subscribe()
	r.Append(NewBornEvent(1, 10, components.SpeciesGrazer, [2]uint64{}))
	b := r.Subscribe()
	r.Append(NewKilledEvent(2, 11, components.SpeciesHunter, 10))

	if got := a.Drain(nil); len(got) != 2 || got[0].Type != EventBorn || got[1].Type != EventKilled {
		t.Errorf("first subscriber got %v", got)
	}
	if got := b.Drain(nil); len(got) != 1 || got[0].Target != 10 {
		t.Errorf("second subscriber got %v", got)
	}
	if got := a.Drain(nil); len(got) != 0 {
		t.Errorf("drained twice: %v", got)
	}
}

func TestEventRingOverrunCountsDropped(t *testing.T) {
	r := NewEventRing(8)
	c := r.Subscribe()
	for i := 0; i < 20; i++ {
		r.Append(NewDiagnosticEvent(uint64(i), 0, "x"))
	}
	got := c.Drain(nil)
	if len(got) != 8 {
		t.Fatalf("drained %d events, want 8", len(got))
	}
	if got[0].Frame != 12 || got[7].Frame != 19 {
		t.Errorf("kept frames %d..%d, want 12..19", got[0].Frame, got[7].Frame)
	}
	if c.Dropped() != 12 {
		t.Errorf("dropped = %d, want 12", c.Dropped())
	}
}

func TestEventRingConcurrentReaders(t *testing.T) {
	r := NewEventRing(1 << 12)
	subs := []*Cursor{r.Subscribe(), r.Subscribe(), r.Subscribe()}

	var wg sync.WaitGroup
	counts := make([]int, len(subs))
	done := make(chan struct{})
	for i, c := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf []Event
			for {
				buf = c.Drain(buf[:0])
				counts[i] += len(buf)
				select {
				case <-done:
					counts[i] += len(c.Drain(buf[:0]))
					return
				default:
				}
			}
		}()
	}
	for i := 0; i < 1000; i++ {
		r.Append(NewAteEvent(uint64(i), 1, components.SpeciesGrazer, world.FoodPlant, 1))
	}
	close(done)
	wg.Wait()
	for i, n := range counts {
		if n != 1000 {
			t.Errorf("subscriber %d saw %d events", i, n)
		}
	}
}

func TestCollectorCountsEvents(t *testing.T) {
	c := NewCollector(1, 0.1)
	events := []Event{
		NewBornEvent(1, 1, components.SpeciesGrazer, [2]uint64{}),
		NewDiedEvent(2, 1, components.SpeciesGrazer, components.CauseStarvation, components.Position{}),
		NewDiedEvent(2, 2, components.SpeciesGrazer, components.CausePredation, components.Position{}),
		NewKilledEvent(2, 3, components.SpeciesHunter, 2),
		NewAteEvent(3, 4, components.SpeciesScavenger, world.FoodCarrion, 5),
		NewNutrientEvent(4, 0, 0, 3),
	}
	for _, e := range events {
		c.Record(e)
	}
	if c.ShouldFlush(9) || !c.ShouldFlush(10) {
		t.Fatalf("window of %d frames flushes at wrong frame", c.WindowFrames())
	}

	var pop Population
	pop.Species[components.SpeciesGrazer] = 3
	pop.Species[components.SpeciesHunter] = 1
	pop.Energies = []float64{0.2, 0.4, 0.6, 0.8}
	s := c.Flush(10, pop)

	if s.Births != 1 || s.Deaths != 2 || s.Starved != 1 || s.Kills != 1 || s.Meals != 1 || s.CarrionEats != 1 || s.Nutrients != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.Population != 4 || s.SpeciesAlive != 2 {
		t.Errorf("population %d across %d species", s.Population, s.SpeciesAlive)
	}
	if s.EnergyMean < 0.49 || s.EnergyMean > 0.51 {
		t.Errorf("energy mean = %v", s.EnergyMean)
	}

	if again := c.Flush(20, Population{}); again.Births != 0 || again.WindowStart != 10 {
		t.Errorf("counters not reset: %+v", again)
	}
}
