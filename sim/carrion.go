package sim

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/systems"
	"github.com/pthm-cable/forge/world"
)

// carrionField serves corpses as food. Corpses are ECS entities; the grid
// maps a position to an index into ents and is rebuilt every frame.
type carrionField struct {
	grid  *systems.SpatialGrid
	world *ecs.World
	m     *ecs.Map2[components.Position, components.Corpse]
	ents  []ecs.Entity
	near  []systems.Neighbor
	count int
}

func newCarrionField(b world.Bounds, cell float32, w *ecs.World) *carrionField {
	return &carrionField{
		grid:  systems.NewSpatialGrid(b.MinX, b.MinZ, b.MaxX, b.MaxZ, cell, 4),
		world: w,
		m:     ecs.NewMap2[components.Position, components.Corpse](w),
	}
}

// Len returns the number of corpses in the world.
func (c *carrionField) Len() int { return c.count }

// add creates a corpse and makes it visible immediately.
func (c *carrionField) add(pos components.Position, corpse components.Corpse) ecs.Entity {
	e := c.m.NewEntity(&pos, &corpse)
	c.insert(e, pos)
	c.count++
	return e
}

func (c *carrionField) insert(e ecs.Entity, pos components.Position) {
	slot := int32(len(c.ents))
	c.ents = append(c.ents, e)
	c.grid.Insert(systems.Entry{ID: uint64(slot) + 1, Slot: slot, X: pos.X, Y: pos.Y, Z: pos.Z})
}

// rebuild re-indexes the corpses that still exist.
func (c *carrionField) rebuild(f *ecs.Filter2[components.Position, components.Corpse]) {
	c.grid.Clear()
	c.ents = c.ents[:0]
	c.count = 0
	q := f.Query()
	for q.Next() {
		pos, corpse := q.Get()
		c.count++
		if corpse.Biomass <= 0 {
			continue
		}
		c.insert(q.Entity(), *pos)
	}
}

// remove deletes a corpse entity.
func (c *carrionField) remove(e ecs.Entity) {
	c.world.RemoveEntity(e)
	c.count--
}

// GetFoodNear lists corpses within r of (x, z).
func (c *carrionField) GetFoodNear(dst []world.FoodItem, x, z, r float32) []world.FoodItem {
	c.near = c.grid.QueryRadiusInto(c.near[:0], x, z, r, 0)
	for _, n := range c.near {
		e := c.ents[n.Slot]
		if !c.world.Alive(e) {
			continue
		}
		pos, corpse := c.m.Get(e)
		if corpse.Biomass <= 0 {
			continue
		}
		dst = append(dst, world.FoodItem{X: pos.X, Y: pos.Y, Z: pos.Z, Kind: world.FoodCarrion, Residual: corpse.Biomass})
	}
	return dst
}

// ConsumeAt eats from the nearest corpse within reach of (x, z) and
// returns the biomass taken.
func (c *carrionField) ConsumeAt(x, z, amount float32) float32 {
	if amount <= 0 {
		return 0
	}
	c.near = c.grid.QueryKNearest(c.near[:0], x, z, 1, 0.5, 0, func(en *systems.Entry) bool {
		e := c.ents[en.Slot]
		if !c.world.Alive(e) {
			return false
		}
		_, corpse := c.m.Get(e)
		return corpse.Biomass > 0
	})
	if len(c.near) == 0 {
		return 0
	}
	_, corpse := c.m.Get(c.ents[c.near[0].Slot])
	got := min(amount, corpse.Biomass)
	corpse.Biomass -= got
	return got
}

// foodSources is the FoodProvider the core sees: carrion from the corpse
// field, everything else from the patch field.
type foodSources struct {
	field   *world.FoodField
	carrion *carrionField
}

func (f *foodSources) GetFoodNear(dst []world.FoodItem, x, z, r float32, kind world.FoodKind) []world.FoodItem {
	if kind == world.FoodCarrion {
		return f.carrion.GetFoodNear(dst, x, z, r)
	}
	return f.field.GetFoodNear(dst, x, z, r, kind)
}

func (f *foodSources) ConsumeAt(x, z float32, kind world.FoodKind, amount float32) float32 {
	if kind == world.FoodCarrion {
		return f.carrion.ConsumeAt(x, z, amount)
	}
	return f.field.ConsumeAt(x, z, kind, amount)
}
