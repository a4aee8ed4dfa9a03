package telemetry

import (
	"encoding/json"
	"sort"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/config"
	"github.com/pthm-cable/forge/rng"
)

// HallEntry is an archived genome of a successful agent.
type HallEntry struct {
	ID         uint64            `json:"id"`
	Species    string            `json:"species"`
	Fitness    float32           `json:"fitness"`
	Generation uint32            `json:"generation"`
	Children   int               `json:"children"`
	Kills      int               `json:"kills"`
	Traits     components.Traits `json:"traits"`
	Genome     []byte            `json:"genome"` // neural.EncodeGenome blob
}

// HallOfFame keeps the fittest genomes of each species for reseeding a
// species that has nearly died out.
type HallOfFame struct {
	halls      [components.NumSpecies][]HallEntry
	size       int
	minFitness float32
}

// NewHallOfFame creates an empty hall from the configuration.
func NewHallOfFame(cfg config.HallOfFameConfig) *HallOfFame {
	return &HallOfFame{size: max(cfg.Size, 1), minFitness: float32(cfg.MinFitness)}
}

// Consider offers a dead agent for entry. It reports whether the entry was
// kept.
func (h *HallOfFame) Consider(sp components.Species, e HallEntry) bool {
	if sp >= components.NumSpecies || e.Fitness < h.minFitness || len(e.Genome) == 0 {
		return false
	}
	e.Species = sp.String()
	hall := h.halls[sp]
	idx := sort.Search(len(hall), func(i int) bool { return hall[i].Fitness < e.Fitness })
	if idx >= h.size {
		return false
	}
	hall = append(hall, HallEntry{})
	copy(hall[idx+1:], hall[idx:])
	hall[idx] = e
	if len(hall) > h.size {
		hall = hall[:h.size]
	}
	h.halls[sp] = hall
	return true
}

// Sample picks an entry by tournament of three; nil when the hall is empty.
func (h *HallOfFame) Sample(sp components.Species, src rng.Source) *HallEntry {
	if sp >= components.NumSpecies || len(h.halls[sp]) == 0 {
		return nil
	}
	hall := h.halls[sp]
	var best *HallEntry
	for i := 0; i < 3; i++ {
		c := &hall[src.IntN(len(hall))]
		if best == nil || c.Fitness > best.Fitness {
			best = c
		}
	}
	e := *best
	return &e
}

// Size returns the number of entries for sp.
func (h *HallOfFame) Size(sp components.Species) int {
	if sp >= components.NumSpecies {
		return 0
	}
	return len(h.halls[sp])
}

// MarshalJSON writes every non-empty hall keyed by species tag.
func (h *HallOfFame) MarshalJSON() ([]byte, error) {
	out := make(map[string][]HallEntry)
	for sp, hall := range h.halls {
		if len(hall) > 0 {
			out[components.Species(sp).String()] = hall
		}
	}
	return json.MarshalIndent(out, "", "  ")
}
