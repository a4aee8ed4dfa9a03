package telemetry

import (
	"testing"

	"github.com/pthm-cable/forge/components"
)

func window(frame uint64, counts map[components.Species]int) WindowStats {
	s := WindowStats{WindowEnd: frame}
	for sp, n := range counts {
		s.SpeciesCounts[sp] = n
		s.Population += n
		if n > 0 {
			s.SpeciesAlive++
		}
	}
	return s
}

func hasBookmark(bms []Bookmark, t BookmarkType) bool {
	for _, b := range bms {
		if b.Type == t {
			return true
		}
	}
	return false
}

func TestBookmarkPopulationCrash(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 5; i++ {
		bd.Check(window(uint64(i*600), map[components.Species]int{components.SpeciesGrazer: 80, components.SpeciesHunter: 20}))
	}
	bms := bd.Check(window(3000, map[components.Species]int{components.SpeciesGrazer: 40, components.SpeciesHunter: 10}))
	if !hasBookmark(bms, BookmarkPopulationCrash) {
		t.Errorf("expected population_crash, got %v", bms)
	}
}

func TestBookmarkExtinction(t *testing.T) {
	bd := NewBookmarkDetector(10)
	bd.Check(window(0, map[components.Species]int{components.SpeciesGrazer: 50, components.SpeciesApex: 1}))
	bms := bd.Check(window(600, map[components.Species]int{components.SpeciesGrazer: 50}))
	if !hasBookmark(bms, BookmarkExtinction) {
		t.Errorf("expected extinction, got %v", bms)
	}
	// Only reported once.
	if bms := bd.Check(window(1200, map[components.Species]int{components.SpeciesGrazer: 50})); hasBookmark(bms, BookmarkExtinction) {
		t.Error("extinction reported twice")
	}
}

func TestBookmarkRecovery(t *testing.T) {
	bd := NewBookmarkDetector(10)
	bd.Check(window(0, map[components.Species]int{components.SpeciesGrazer: 60, components.SpeciesHunter: 10}))
	bd.Check(window(600, map[components.Species]int{components.SpeciesGrazer: 60, components.SpeciesHunter: 2}))
	bms := bd.Check(window(1200, map[components.Species]int{components.SpeciesGrazer: 60, components.SpeciesHunter: 8}))
	if !hasBookmark(bms, BookmarkRecovery) {
		t.Errorf("expected recovery, got %v", bms)
	}
}

func TestBookmarkHuntingSpike(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 5; i++ {
		s := window(uint64(i*600), map[components.Species]int{components.SpeciesGrazer: 50})
		s.Kills = 2
		bd.Check(s)
	}
	s := window(3000, map[components.Species]int{components.SpeciesGrazer: 50})
	s.Kills = 8
	if bms := bd.Check(s); !hasBookmark(bms, BookmarkHuntingSpike) {
		t.Errorf("expected hunting_spike, got %v", bms)
	}
}

func TestBookmarkStableEcosystemFiresOnce(t *testing.T) {
	bd := NewBookmarkDetector(10)
	fired := 0
	for i := 0; i < 15; i++ {
		pop := map[components.Species]int{components.SpeciesGrazer: 80 + i%3, components.SpeciesHunter: 20}
		if hasBookmark(bd.Check(window(uint64(i*600), pop)), BookmarkStableEcosystem) {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("stable_ecosystem fired %d times, want 1", fired)
	}
}

func TestBookmarkSingleSpeciesIsNotStable(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 15; i++ {
		if hasBookmark(bd.Check(window(uint64(i*600), map[components.Species]int{components.SpeciesGrazer: 100})), BookmarkStableEcosystem) {
			t.Fatal("monoculture reported as stable ecosystem")
		}
	}
}
