package world

import (
	"math"

	"github.com/pthm-cable/forge/config"
)

// PheromoneGrid is a decaying scalar field laid by colonial species. Each
// cell may be read by at most one agent per frame; later readers in the
// same frame see nothing.
type PheromoneGrid struct {
	b        Bounds
	cellSize float32
	cols     int
	rows     int
	values   []float32
	claimed  []uint64 // frame+1 of the last read, 0 = never
	decay    float32
	deposit  float32
}

// NewPheromoneGrid creates an empty field over b.
func NewPheromoneGrid(cfg config.PheromoneConfig, b Bounds) *PheromoneGrid {
	size := float32(cfg.CellSize)
	if size <= 0 {
		size = 4
	}
	cols := int(math.Ceil(float64(b.Width()/size))) + 1
	rows := int(math.Ceil(float64(b.Depth()/size))) + 1
	return &PheromoneGrid{
		b:        b,
		cellSize: size,
		cols:     cols,
		rows:     rows,
		values:   make([]float32, cols*rows),
		claimed:  make([]uint64, cols*rows),
		decay:    float32(cfg.Decay),
		deposit:  float32(cfg.Deposit),
	}
}

func (g *PheromoneGrid) index(x, z float32) int {
	col := int((x - g.b.MinX) / g.cellSize)
	row := int((z - g.b.MinZ) / g.cellSize)
	col = min(max(col, 0), g.cols-1)
	row = min(max(row, 0), g.rows-1)
	return row*g.cols + col
}

// Deposit adds the configured deposit rate times dt at (x, z).
func (g *PheromoneGrid) Deposit(x, z, dt float32) {
	g.values[g.index(x, z)] += g.deposit * dt
}

// Decay fades the whole field.
func (g *PheromoneGrid) Decay(dt float32) {
	k := float32(math.Exp(-float64(g.decay * dt)))
	for i := range g.values {
		g.values[i] *= k
	}
}

// Sample returns the concentration at (x, z).
func (g *PheromoneGrid) Sample(x, z float32) float32 {
	return g.values[g.index(x, z)]
}

// Gradient claims the cell under (x, z) for this frame and returns the
// central-difference gradient there. ok is false if another reader
// already claimed the cell this frame.
func (g *PheromoneGrid) Gradient(x, z float32, frame uint64) (gx, gz float32, ok bool) {
	i := g.index(x, z)
	if g.claimed[i] == frame+1 {
		return 0, 0, false
	}
	g.claimed[i] = frame + 1
	h := g.cellSize
	gx = (g.Sample(x+h, z) - g.Sample(x-h, z)) / (2 * h)
	gz = (g.Sample(x, z+h) - g.Sample(x, z-h)) / (2 * h)
	return gx, gz, true
}

// Total returns the summed concentration.
func (g *PheromoneGrid) Total() float32 {
	var sum float32
	for _, v := range g.values {
		sum += v
	}
	return sum
}
