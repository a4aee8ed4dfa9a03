package systems

// HierarchicalIndex is the two-level grid: a fine level for flocking and
// separation, a coarse level for long-range predator, prey and LOD
// queries. Both levels share the same bounds and are rebuilt together.
type HierarchicalIndex struct {
	Fine   *SpatialGrid
	Coarse *SpatialGrid

	coarseBase float32 // configured coarse cell size
	scratch    []Entry
}

// NewHierarchicalIndex creates both levels.
func NewHierarchicalIndex(minX, minZ, maxX, maxZ, fineCell, coarseCell float32, expected int) *HierarchicalIndex {
	return &HierarchicalIndex{
		Fine:       NewSpatialGrid(minX, minZ, maxX, maxZ, fineCell, expected),
		Coarse:     NewSpatialGrid(minX, minZ, maxX, maxZ, max(coarseCell, fineCell), expected),
		coarseBase: coarseCell,
	}
}

// Clear resets both levels.
func (s *HierarchicalIndex) Clear() {
	s.Fine.Clear()
	s.Coarse.Clear()
}

// Insert adds an entry to both levels.
func (s *HierarchicalIndex) Insert(e Entry) {
	s.Fine.Insert(e)
	s.Coarse.Insert(e)
}

// Rebuild clears the index and inserts every entry.
func (s *HierarchicalIndex) Rebuild(entries []Entry) {
	s.Clear()
	for i := range entries {
		s.Insert(entries[i])
	}
}

// SetFineCellSize changes the fine level's cell size. The coarse level is
// never finer than the fine one and returns to its configured size once the
// fine size drops back below it. Indexed entries are kept.
func (s *HierarchicalIndex) SetFineCellSize(size float32) {
	coarse := max(s.coarseBase, size)
	if size == s.Fine.CellSize() && coarse == s.Coarse.CellSize() {
		return
	}
	s.scratch = s.Coarse.AppendEntries(s.scratch[:0])
	s.Fine.Resize(size)
	if coarse != s.Coarse.CellSize() {
		s.Coarse.Resize(coarse)
	} else {
		s.Coarse.Clear()
	}
	s.Rebuild(s.scratch)
}

// Move relocates an entry in both levels.
func (s *HierarchicalIndex) Move(e Entry, oldX, oldZ float32) bool {
	ok := s.Fine.Move(e, oldX, oldZ)
	return s.Coarse.Move(e, oldX, oldZ) && ok
}

// Len returns the number of indexed agents.
func (s *HierarchicalIndex) Len() int { return s.Fine.Len() }

// level picks the grid whose cell size suits a query radius.
func (s *HierarchicalIndex) level(radius float32) *SpatialGrid {
	if radius < s.Coarse.CellSize() {
		return s.Fine
	}
	return s.Coarse
}

// QueryRadiusInto appends every entry within radius of (x, z).
func (s *HierarchicalIndex) QueryRadiusInto(dst []Neighbor, x, z, radius float32, exclude uint64) []Neighbor {
	return s.level(radius).QueryRadiusInto(dst, x, z, radius, exclude)
}

// QueryKNearest appends up to k accepted entries nearest to (x, z).
func (s *HierarchicalIndex) QueryKNearest(dst []Neighbor, x, z float32, k int, maxR float32, exclude uint64, accept func(*Entry) bool) []Neighbor {
	return s.level(maxR).QueryKNearest(dst, x, z, k, maxR, exclude, accept)
}

// CountInRadius counts entries within radius of (x, z).
func (s *HierarchicalIndex) CountInRadius(x, z, radius float32) int {
	return s.level(radius).CountInRadius(x, z, radius)
}
