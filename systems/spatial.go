// Package systems holds the per-agent simulation stages: spatial indexing,
// perception, steering and integration.
package systems

import (
	"container/heap"
	"math"
)

// Entry is one indexed agent. Slot is the agent's index in the caller's
// per-frame table; the grid never interprets it.
type Entry struct {
	ID      uint64
	Slot    int32
	X, Y, Z float32
}

// Neighbor holds a nearby entry with precomputed planar delta.
type Neighbor struct {
	Entry
	DX, DZ float32 // delta from query origin
	DistSq float32 // squared planar distance
}

// neighborCap is the initial capacity of reusable query buffers.
const neighborCap = 128

// SpatialGrid is a uniform grid over the horizontal plane. Y is carried in
// entries but ignored for cell assignment.
type SpatialGrid struct {
	minX, minZ float32
	maxX, maxZ float32
	cellSize   float32
	cols       int
	rows       int
	cells      [][]Entry
	count      int
	expected   int
}

// NewSpatialGrid creates a grid covering [minX, maxX] × [minZ, maxZ].
// expected sizes the initial per-cell capacity.
func NewSpatialGrid(minX, minZ, maxX, maxZ, cellSize float32, expected int) *SpatialGrid {
	g := &SpatialGrid{
		minX:     minX,
		minZ:     minZ,
		maxX:     maxX,
		maxZ:     maxZ,
		expected: expected,
	}
	g.Resize(cellSize)
	return g
}

// Resize rebuilds the cell layout with a new cell size. The grid is left
// empty.
func (g *SpatialGrid) Resize(cellSize float32) {
	if cellSize <= 0 {
		cellSize = 1
	}
	g.cellSize = cellSize
	g.cols = int(math.Ceil(float64((g.maxX-g.minX)/cellSize))) + 1
	g.rows = int(math.Ceil(float64((g.maxZ-g.minZ)/cellSize))) + 1

	per := 4
	if n := g.cols * g.rows; g.expected > 0 {
		per = max(per, g.expected*2/n)
	}
	g.cells = make([][]Entry, g.cols*g.rows)
	for i := range g.cells {
		g.cells[i] = make([]Entry, 0, per)
	}
	g.count = 0
}

// AppendEntries appends every indexed entry to dst in cell order.
func (g *SpatialGrid) AppendEntries(dst []Entry) []Entry {
	for _, cell := range g.cells {
		dst = append(dst, cell...)
	}
	return dst
}

// CellSize returns the current cell edge length.
func (g *SpatialGrid) CellSize() float32 { return g.cellSize }

// Len returns the number of indexed entries.
func (g *SpatialGrid) Len() int { return g.count }

// Clear removes all entries from the grid.
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	g.count = 0
}

// Insert adds an entry. Positions outside the bounds land in the nearest
// border cell.
func (g *SpatialGrid) Insert(e Entry) {
	col, row := g.cellCoords(e.X, e.Z)
	idx := row*g.cols + col
	g.cells[idx] = append(g.cells[idx], e)
	g.count++
}

// Move relocates an entry whose position changed from (oldX, oldZ).
// Returns false if the entry was not found in its old cell.
func (g *SpatialGrid) Move(e Entry, oldX, oldZ float32) bool {
	oc, or := g.cellCoords(oldX, oldZ)
	nc, nr := g.cellCoords(e.X, e.Z)
	oi := or*g.cols + oc
	cell := g.cells[oi]
	for i := range cell {
		if cell[i].ID != e.ID {
			continue
		}
		if oi == nr*g.cols+nc {
			cell[i] = e
			return true
		}
		cell[i] = cell[len(cell)-1]
		g.cells[oi] = cell[:len(cell)-1]
		g.count--
		g.Insert(e)
		return true
	}
	return false
}

// LoadFactor is the mean number of entries per occupied cell.
func (g *SpatialGrid) LoadFactor() float32 {
	occupied := 0
	for _, c := range g.cells {
		if len(c) > 0 {
			occupied++
		}
	}
	if occupied == 0 {
		return 0
	}
	return float32(g.count) / float32(occupied)
}

// CellTable is a flattened copy of a grid: per-cell start offsets and
// counts into a slot array. It is the neighbour structure handed to the
// compute device.
type CellTable struct {
	MinX, MinZ float32
	CellSize   float32
	Cols, Rows int
	Start      []int32
	Count      []int32
	Slots      []int32
}

// ExportCells fills t from the grid, reusing its slices.
func (g *SpatialGrid) ExportCells(t *CellTable) {
	n := len(g.cells)
	t.MinX, t.MinZ = g.minX, g.minZ
	t.CellSize = g.cellSize
	t.Cols, t.Rows = g.cols, g.rows
	t.Start = resizeInt32(t.Start, n)
	t.Count = resizeInt32(t.Count, n)
	t.Slots = t.Slots[:0]
	for i, c := range g.cells {
		t.Start[i] = int32(len(t.Slots))
		t.Count[i] = int32(len(c))
		for _, e := range c {
			t.Slots = append(t.Slots, e.Slot)
		}
	}
}

// Cell returns the clamped cell of a world position.
func (t *CellTable) Cell(x, z float32) (col, row int) {
	col = int(math.Floor(float64((x - t.MinX) / t.CellSize)))
	row = int(math.Floor(float64((z - t.MinZ) / t.CellSize)))
	col = min(max(col, 0), t.Cols-1)
	row = min(max(row, 0), t.Rows-1)
	return col, row
}

func resizeInt32(s []int32, n int) []int32 {
	if cap(s) < n {
		return make([]int32, n)
	}
	return s[:n]
}

// cellCoords returns the clamped cell of a world position.
func (g *SpatialGrid) cellCoords(x, z float32) (col, row int) {
	col = int(math.Floor(float64((x - g.minX) / g.cellSize)))
	row = int(math.Floor(float64((z - g.minZ) / g.cellSize)))
	col = min(max(col, 0), g.cols-1)
	row = min(max(row, 0), g.rows-1)
	return col, row
}

// cellRange returns the clamped cell box overlapping the square around
// (x, z) with half-extent r. ok is false when the square misses the grid.
func (g *SpatialGrid) cellRange(x, z, r float32) (c0, r0, c1, r1 int, ok bool) {
	if x+r < g.minX || x-r > g.maxX || z+r < g.minZ || z-r > g.maxZ {
		return 0, 0, 0, 0, false
	}
	c0, r0 = g.cellCoords(x-r, z-r)
	c1, r1 = g.cellCoords(x+r, z+r)
	return c0, r0, c1, r1, true
}

// QueryRadiusInto appends every entry within radius of (x, z) to dst.
// Reuse dst across calls to avoid allocations.
func (g *SpatialGrid) QueryRadiusInto(dst []Neighbor, x, z, radius float32, exclude uint64) []Neighbor {
	c0, r0, c1, r1, ok := g.cellRange(x, z, radius)
	if !ok {
		return dst
	}
	radiusSq := radius * radius
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			for _, e := range g.cells[row*g.cols+col] {
				if e.ID == exclude {
					continue
				}
				dx, dz := e.X-x, e.Z-z
				distSq := dx*dx + dz*dz
				if distSq > radiusSq {
					continue
				}
				dst = append(dst, Neighbor{Entry: e, DX: dx, DZ: dz, DistSq: distSq})
			}
		}
	}
	return dst
}

// CountInRadius counts entries within radius of (x, z).
func (g *SpatialGrid) CountInRadius(x, z, radius float32) int {
	c0, r0, c1, r1, ok := g.cellRange(x, z, radius)
	if !ok {
		return 0
	}
	radiusSq := radius * radius
	n := 0
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			for _, e := range g.cells[row*g.cols+col] {
				dx, dz := e.X-x, e.Z-z
				if dx*dx+dz*dz <= radiusSq {
					n++
				}
			}
		}
	}
	return n
}

// QueryKNearest appends up to k entries nearest to (x, z) within maxR,
// closest first. accept, when non-nil, filters candidates. Rings of cells
// are walked outward from the home cell until k are held and the next
// ring cannot contain anything closer.
func (g *SpatialGrid) QueryKNearest(dst []Neighbor, x, z float32, k int, maxR float32, exclude uint64, accept func(*Entry) bool) []Neighbor {
	if k <= 0 {
		return dst
	}
	if _, _, _, _, ok := g.cellRange(x, z, maxR); !ok {
		return dst
	}
	hc := int(math.Floor(float64((x - g.minX) / g.cellSize)))
	hr := int(math.Floor(float64((z - g.minZ) / g.cellSize)))
	maxRSq := maxR * maxR

	best := make(neighborHeap, 0, k)
	maxRing := int(maxR/g.cellSize) + 1
	for d := 0; d <= maxRing; d++ {
		if d > 0 && len(best) == k {
			// Anything in ring d is at least (d-1) full cells away.
			edge := float32(d-1) * g.cellSize
			if edge*edge >= best[0].DistSq {
				break
			}
		}
		g.scanRing(hc, hr, d, func(e *Entry) {
			if e.ID == exclude {
				return
			}
			dx, dz := e.X-x, e.Z-z
			distSq := dx*dx + dz*dz
			if distSq > maxRSq {
				return
			}
			if len(best) == k && distSq >= best[0].DistSq {
				return
			}
			if accept != nil && !accept(e) {
				return
			}
			n := Neighbor{Entry: *e, DX: dx, DZ: dz, DistSq: distSq}
			if len(best) < k {
				heap.Push(&best, n)
			} else {
				best[0] = n
				heap.Fix(&best, 0)
			}
		})
	}

	start := len(dst)
	for len(best) > 0 {
		dst = append(dst, heap.Pop(&best).(Neighbor))
	}
	// Popped farthest first.
	out := dst[start:]
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return dst
}

// scanRing visits every entry in the square ring of Chebyshev radius d
// around cell (hc, hr), skipping cells outside the grid.
func (g *SpatialGrid) scanRing(hc, hr, d int, visit func(*Entry)) {
	visitCell := func(col, row int) {
		if col < 0 || row < 0 || col >= g.cols || row >= g.rows {
			return
		}
		cell := g.cells[row*g.cols+col]
		for i := range cell {
			visit(&cell[i])
		}
	}
	if d == 0 {
		visitCell(hc, hr)
		return
	}
	for col := hc - d; col <= hc+d; col++ {
		visitCell(col, hr-d)
		visitCell(col, hr+d)
	}
	for row := hr - d + 1; row <= hr+d-1; row++ {
		visitCell(hc-d, row)
		visitCell(hc+d, row)
	}
}

// neighborHeap is a max-heap on DistSq.
type neighborHeap []Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return h[i].DistSq > h[j].DistSq }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *neighborHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
