package telemetry

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/forge/components"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkPopulationCrash BookmarkType = "population_crash"
	BookmarkExtinction      BookmarkType = "extinction"
	BookmarkRecovery        BookmarkType = "recovery"
	BookmarkHuntingSpike    BookmarkType = "hunting_spike"
	BookmarkStableEcosystem BookmarkType = "stable_ecosystem"
)

// Bookmark marks an interesting moment in a run.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Frame       uint64       `csv:"frame"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark", "type", string(b.Type), "tick", b.Frame, "description", b.Description)
}

const stableWindows = 5

// BookmarkDetector watches the stream of WindowStats for crashes,
// extinctions, recoveries and long stable stretches.
type BookmarkDetector struct {
	history []WindowStats
	next    int
	full    bool

	peak    int
	low     [components.NumSpecies]int
	present [components.NumSpecies]bool
	stable  int
}

// NewBookmarkDetector creates a detector keeping historySize windows.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	historySize = max(historySize, stableWindows)
	return &BookmarkDetector{history: make([]WindowStats, historySize)}
}

// Check analyses the latest window and returns any bookmarks it triggers.
func (bd *BookmarkDetector) Check(s WindowStats) []Bookmark {
	var out []Bookmark
	add := func(t BookmarkType, format string, args ...any) {
		out = append(out, Bookmark{Type: t, Frame: s.WindowEnd, Description: fmt.Sprintf(format, args...)})
	}

	if bd.peak > 0 {
		drop := 1 - float64(s.Population)/float64(bd.peak)
		if drop > 0.30 && s.Population < bd.peak-10 {
			add(BookmarkPopulationCrash, "population fell %.0f%% from %d to %d", drop*100, bd.peak, s.Population)
			bd.peak = s.Population
		}
	}
	bd.peak = max(bd.peak, s.Population)

	for sp, n := range s.SpeciesCounts {
		name := components.Species(sp).String()
		switch {
		case n == 0 && bd.present[sp]:
			add(BookmarkExtinction, "%s went extinct", name)
			bd.present[sp] = false
			bd.low[sp] = 0
		case n > 0 && !bd.present[sp]:
			bd.present[sp] = true
			bd.low[sp] = n
		case n > 0:
			if bd.low[sp] > 0 && bd.low[sp] <= 3 && n >= 3*bd.low[sp] && n >= 6 {
				add(BookmarkRecovery, "%s recovered from %d to %d", name, bd.low[sp], n)
				bd.low[sp] = n
			}
			bd.low[sp] = min(bd.low[sp], n)
		}
	}

	if h := bd.window(); len(h) >= 3 && s.Kills >= 3 {
		kills := make([]float64, len(h))
		for i, w := range h {
			kills[i] = float64(w.Kills)
		}
		if mean := stat.Mean(kills, nil); mean > 0 && float64(s.Kills) > 2*mean {
			add(BookmarkHuntingSpike, "%d kills is %.1fx the recent mean", s.Kills, float64(s.Kills)/mean)
		}
	}

	if bd.isStable(s) {
		bd.stable++
	} else {
		bd.stable = 0
	}
	if bd.stable == stableWindows {
		add(BookmarkStableEcosystem, "%d species coexisting with population near %d", s.SpeciesAlive, s.Population)
	}

	bd.history[bd.next] = s
	bd.next = (bd.next + 1) % len(bd.history)
	bd.full = bd.full || bd.next == 0
	return out
}

func (bd *BookmarkDetector) window() []WindowStats {
	if bd.full {
		return bd.history
	}
	return bd.history[:bd.next]
}

// isStable holds when at least two species are alive and the population's
// coefficient of variation over the last four windows is under 20%.
func (bd *BookmarkDetector) isStable(s WindowStats) bool {
	if s.SpeciesAlive < 2 || s.Population < 10 {
		return false
	}
	h := bd.window()
	if len(h) < 4 {
		return false
	}
	pops := make([]float64, 0, 4)
	for i := 1; i <= 4; i++ {
		j := (bd.next - i + len(bd.history)) % len(bd.history)
		pops = append(pops, float64(bd.history[j].Population))
	}
	mean, std := stat.PopMeanStdDev(pops, nil)
	return mean > 0 && std/mean < 0.2
}
