package sim

import (
	"bytes"
	"math"

	"github.com/mlange-42/ark/ecs"
	"github.com/yaricom/goNEAT/v4/neat/genetics"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/rng"
	"github.com/pthm-cable/forge/systems"
	"github.com/pthm-cable/forge/telemetry"
	"github.com/pthm-cable/forge/world"
)

// birthRequest is a child conceived this frame. Births are applied at the
// end of the frame, so the child is first simulated in the next one.
type birthRequest struct {
	species    components.Species
	pos        components.Position
	heading    float32
	energy     float32
	genome     *genetics.Genome
	traits     components.Traits
	generation uint32
	parents    [2]uint64
	hybrid     bool
	load       float32
}

// lifecycle runs reproduction, deaths, births, corpse decay and the world
// clock for the frame.
func (s *Simulation) lifecycle(dt float32) {
	s.breed()
	s.retireDead()
	s.applyBirths()
	s.decayCorpses(dt)
	if s.collector.ShouldFlush(s.frame) {
		s.reseed()
	}

	s.clock.Advance(dt)
	s.food.Regrow(dt, s.clock)
	s.pheromones.Decay(dt)
	s.steer.SetSeason(s.clock.Season())

	if s.cfg.NEAT.GenerationSeconds > 0 && s.clock.Time() >= s.nextGenAt {
		s.endGeneration()
		s.nextGenAt += s.cfg.NEAT.GenerationSeconds
	}
}

// ready reports whether an agent meets its own reproduction preconditions.
func (s *Simulation) ready(pol *systems.Policy, org *components.Organism, phys *components.Physiology, lin *components.Lineage) bool {
	if !phys.Alive || lin.Sterile || phys.ReproCooldown > 0 {
		return false
	}
	if phys.Energy < pol.ReproThreshold || phys.Age < pol.Maturity {
		return false
	}
	if pol.Hunts() && org.KillCount < pol.KillsRequired {
		return false
	}
	return true
}

// breed pairs every due, ready agent with the nearest ready mate and queues
// the child.
func (s *Simulation) breed() {
	var pending [components.NumSpecies]int
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.due || sl.bred {
			continue
		}
		pos, _, rot, org, phys, lin, _, traits := s.agents.Get(sl.e)
		pol := s.pols[org.Species]
		if !s.ready(pol, org, phys, lin) {
			continue
		}
		if pol.Capacity > 0 && s.census[org.Species]+pending[org.Species] >= pol.Capacity {
			continue
		}

		if !pol.Sexual {
			if req, ok := s.conceive(sl, nil); ok {
				sl.bred = true
				s.pay(pol, phys, traits)
				req.energy = s.childEnergy(pol, pol.ReproCost)
				req.pos, req.heading = *pos, rot.Heading
				s.births = append(s.births, req)
				pending[org.Species]++
			}
			continue
		}

		mate := s.findMate(pol, sl, pos)
		if mate < 0 {
			continue
		}
		msl := &s.slots[mate]
		req, ok := s.conceive(sl, msl)
		if !ok {
			continue
		}
		_, _, _, _, mphys, _, _, mtraits := s.agents.Get(msl.e)
		sl.bred, msl.bred = true, true
		s.pay(pol, phys, traits)
		s.pay(pol, mphys, mtraits)
		req.energy = s.childEnergy(pol, 2*pol.ReproCost)
		req.pos, req.heading = *pos, rot.Heading
		s.births = append(s.births, req)
		pending[org.Species]++
	}
}

// findMate returns the slot of the nearest ready agent of the same species
// within mating range, or -1.
func (s *Simulation) findMate(pol *systems.Policy, sl *agentSlot, pos *components.Position) int32 {
	s.near = s.index.QueryRadiusInto(s.near[:0], pos.X, pos.Z, pol.Mating+s.reach, sl.id)
	best, bestD := int32(-1), pol.Mating*pol.Mating
	for _, n := range s.near {
		m := &s.slots[n.Slot]
		if m.species != sl.species || m.bred {
			continue
		}
		mpos, _, _, morg, mphys, mlin, _, _ := s.agents.Get(m.e)
		if !s.ready(pol, morg, mphys, mlin) {
			continue
		}
		dx, dz := mpos.X-pos.X, mpos.Z-pos.Z
		if d := dx*dx + dz*dz; d <= bestD {
			best, bestD = n.Slot, d
		}
	}
	return best
}

// conceive builds the child's genome and genotype. mate is nil for asexual
// reproduction.
func (s *Simulation) conceive(a, b *agentSlot) (birthRequest, bool) {
	_, _, _, _, _, alin, _, atraits := s.agents.Get(a.e)
	req := birthRequest{
		species:    a.species,
		generation: alin.Generation + 1,
		parents:    [2]uint64{a.id, 0},
	}
	ga, fa := s.genomeOf(a.id), float64(s.fitness(a.id))
	var gb *genetics.Genome
	var fb float64
	btraits := atraits
	if b != nil {
		_, _, _, _, _, blin, _, bt := s.agents.Get(b.e)
		req.generation = max(alin.Generation, blin.Generation) + 1
		req.parents[1] = b.id
		btraits = bt
		gb, fb = s.genomeOf(b.id), float64(s.fitness(b.id))
	}
	ga, gb, fa, fb = brainedFirst(ga, gb, fa, fb)
	req.traits = s.recombine(atraits, btraits)

	if ga != nil {
		if gb != nil {
			if neural.GenomeCompatibility(ga, gb, s.params.Options) >= s.params.HybridCap {
				req.hybrid = true
				req.load = float32(s.cfg.Lifecycle.HybridLoad)
			}
		}
		child, err := neural.CreateOffspring(ga, gb, fa, fb, s.tracker, s.params, s.rng)
		if err != nil {
			s.diagnose("offspring", a.id, "offspring genome could not be built", "error", err)
			return birthRequest{}, false
		}
		req.genome = child
	}
	return req, true
}

// brainedFirst puts a brained parent first. Each genome keeps its own
// fitness, and a brainless parent contributes neither.
func brainedFirst(ga, gb *genetics.Genome, fa, fb float64) (*genetics.Genome, *genetics.Genome, float64, float64) {
	if ga == nil {
		ga, gb, fa = gb, nil, fb
	}
	if ga == nil {
		fa = 0
	}
	if gb == nil {
		fb = 0
	}
	return ga, gb, fa, fb
}

func (s *Simulation) genomeOf(id uint64) *genetics.Genome {
	if b := s.brains[id]; b != nil {
		return b.Genome
	}
	return nil
}

// recombine takes one allele per trait from each parent and perturbs it.
func (s *Simulation) recombine(a, b *components.Traits) components.Traits {
	sigma := s.cfg.Lifecycle.TraitMutationSigma
	pick := func(t *components.Traits, i int) float32 {
		v := t.A[i]
		if s.rng.IntN(2) == 1 {
			v = t.B[i]
		}
		v += float32(s.rng.NormFloat64() * sigma)
		return min(max(v, 0.25), 4)
	}
	var c components.Traits
	for i := range c.A {
		c.A[i] = pick(a, i)
		c.B[i] = pick(b, i)
	}
	return c
}

// pay charges a parent for reproduction and starts its cooldown, shortened
// by fertility.
func (s *Simulation) pay(pol *systems.Policy, phys *components.Physiology, traits *components.Traits) {
	phys.Energy = max(phys.Energy-pol.ReproCost, 0)
	fert := traits.Express(components.TraitFertility)
	if fert <= 0 {
		fert = 1
	}
	phys.ReproCooldown = pol.ReproCooldown / fert
}

func (s *Simulation) childEnergy(pol *systems.Policy, paid float32) float32 {
	return min(float32(s.cfg.Lifecycle.ChildEnergyShare)*paid, pol.MaxEnergy)
}

// retireDead removes every dead agent, leaving corpses behind.
func (s *Simulation) retireDead() {
	var dead []ecs.Entity
	q := s.filter.Query()
	for q.Next() {
		_, _, _, _, phys, _, _, _ := q.Get()
		if !phys.Alive {
			dead = append(dead, q.Entity())
		}
	}
	for _, e := range dead {
		s.retire(e)
	}
}

// retire turns a dead agent into a corpse and releases its bookkeeping.
func (s *Simulation) retire(e ecs.Entity) {
	p, _, _, o, ph, l, _, t := s.agents.Get(e)
	pos, org, phys, lin, traits := *p, *o, *ph, *l, *t
	id, sp := org.ID, org.Species

	biomass := float32(s.cfg.Lifecycle.CorpseFraction) * phys.EnergyAtDeath
	if b, ok := s.corpseAt[id]; ok {
		biomass = b
		delete(s.corpseAt, id)
	}
	if biomass > 0 && biomass >= float32(s.cfg.Lifecycle.CorpseMinBiomass) {
		s.carrion.add(pos, components.Corpse{
			Biomass:   biomass,
			Initial:   biomass,
			Source:    sp,
			DecayRate: float32(s.cfg.Lifecycle.CorpseDecayRate),
		})
	}
	s.emit(telemetry.NewDiedEvent(s.frame, id, sp, phys.Cause, pos))

	fit := s.fitness(id)
	if brain := s.brains[id]; brain != nil {
		s.niches[sp].AccumulateFitness(lin.Clade, float64(fit))
		s.niches[sp].RemoveMember(lin.Clade, id)
		if s.hall != nil {
			var buf bytes.Buffer
			if err := neural.EncodeGenome(&buf, brain.Genome); err == nil {
				s.hall.Consider(sp, telemetry.HallEntry{
					ID:         id,
					Fitness:    fit,
					Generation: lin.Generation,
					Children:   int(org.Children),
					Kills:      int(org.KillCount),
					Traits:     traits,
					Genome:     buf.Bytes(),
				})
			}
		}
	}

	s.lifetime.Remove(id)
	delete(s.byID, id)
	delete(s.brains, id)
	if s.census[sp] > 0 {
		s.census[sp]--
	}
	s.world.RemoveEntity(e)
}

// applyBirths spawns the queued children. When the population is at the
// agent cap the least fit agent of the child's species is culled to make
// room; with no candidate the birth is dropped.
func (s *Simulation) applyBirths() {
	jitter := float32(s.cfg.Lifecycle.SpawnJitter)
	for i := range s.births {
		req := &s.births[i]
		if s.maxAgents > 0 && len(s.byID) >= s.maxAgents {
			victim, ok := s.cullCandidate(req.species, req.parents)
			if !ok {
				s.diagnose("birth_dropped", req.parents[0], "birth dropped at agent cap", "species", req.species.String())
				continue
			}
			_, _, _, _, vphys, _, _, _ := s.agents.Get(victim)
			systems.Kill(vphys, components.CauseCulled)
			s.retire(victim)
		}

		pos := req.pos
		pos.X += rng.Range(s.rng, -jitter, jitter)
		pos.Z += rng.Range(s.rng, -jitter, jitter)
		pol := s.pols[req.species]
		if !habitatAllows(pol, s.terrain, pos.X, pos.Z) {
			pos.X, pos.Z = req.pos.X, req.pos.Z
		}
		_, err := s.Spawn(SpawnSpec{
			Species:     req.species,
			Pos:         pos,
			Heading:     req.heading,
			Energy:      req.energy,
			Genome:      req.genome,
			Brainless:   req.genome == nil,
			Traits:      &req.traits,
			Generation:  req.generation,
			Parents:     req.parents,
			Hybrid:      req.hybrid,
			GeneticLoad: req.load,
			SnapY:       true,
		})
		if err != nil {
			s.diagnose("birth_failed", req.parents[0], "birth failed", "error", err)
			continue
		}
		s.creditParents(req)
	}
	s.births = s.births[:0]
}

func (s *Simulation) creditParents(req *birthRequest) {
	for _, p := range req.parents {
		e, ok := s.byID[p]
		if p == 0 || !ok {
			continue
		}
		_, _, _, org, _, lin, _, _ := s.agents.Get(e)
		org.Children++
		s.niches[org.Species].RecordOffspring(lin.Clade)
	}
}

// cullCandidate picks the agent of sp with the lowest niche-shared
// fitness, the oldest among equals. Parents of the pending birth are
// spared.
func (s *Simulation) cullCandidate(sp components.Species, parents [2]uint64) (ecs.Entity, bool) {
	var (
		best    ecs.Entity
		found   bool
		bestFit float32
		bestAge float32
		bestID  uint64
	)
	q := s.filter.Query()
	for q.Next() {
		_, _, _, org, phys, lin, _, _ := q.Get()
		if org.Species != sp || !phys.Alive || org.ID == parents[0] || org.ID == parents[1] {
			continue
		}
		fit := float32(s.niches[sp].AdjustedFitness(lin.Clade, float64(s.fitness(org.ID))))
		better := !found || fit < bestFit ||
			(fit == bestFit && (phys.Age > bestAge || (phys.Age == bestAge && org.ID < bestID)))
		if better {
			best, found = q.Entity(), true
			bestFit, bestAge, bestID = fit, phys.Age, org.ID
		}
	}
	return best, found
}

// decayCorpses shrinks every corpse at the climate-scaled rate and removes
// the ones that are gone, releasing their nutrients.
func (s *Simulation) decayCorpses(dt float32) {
	factor := world.DecayFactor(s.clock)
	type gone struct {
		e       ecs.Entity
		x, z    float32
		initial float32
	}
	var done []gone
	q := s.corpseFilter.Query()
	for q.Next() {
		pos, c := q.Get()
		c.Age += dt
		c.Biomass -= c.DecayRate * factor * dt
		if c.Biomass <= 0 {
			c.Biomass = 0
			done = append(done, gone{e: q.Entity(), x: pos.X, z: pos.Z, initial: c.Initial})
		}
	}
	for _, g := range done {
		s.carrion.remove(g.e)
		s.emit(telemetry.NewNutrientEvent(s.frame, g.x, g.z, g.initial))
	}
}

// reseed restores species that have nearly died out from the hall of
// fame.
func (s *Simulation) reseed() {
	if s.hall == nil {
		return
	}
	floor := s.cfg.HallOfFame.ReseedFloor
	for sp := range components.NumSpecies {
		pol := s.pols[sp]
		if pol == nil || s.census[sp] >= floor || s.hall.Size(sp) == 0 {
			continue
		}
		for range s.cfg.HallOfFame.ReseedCount {
			entry := s.hall.Sample(sp, s.rng)
			if entry == nil {
				break
			}
			g, err := neural.DecodeGenome(bytes.NewReader(entry.Genome))
			if err == nil {
				g, err = neural.CloneGenome(g, s.tracker.NextGenomeID())
			}
			if err != nil {
				s.diagnose("reseed", entry.ID, "hall of fame genome unusable", "error", err)
				continue
			}
			x, z := s.findSite(pol, nil)
			if _, err := s.Spawn(SpawnSpec{
				Species:    sp,
				Pos:        components.Position{X: x, Z: z},
				Heading:    rng.Range(s.rng, -math.Pi, math.Pi),
				Genome:     g,
				Traits:     &entry.Traits,
				Generation: entry.Generation,
				SnapY:      true,
			}); err != nil {
				s.diagnose("reseed", entry.ID, "reseed spawn failed", "error", err)
			}
		}
	}
}

// endGeneration folds living fitness into the NEAT species and ages them.
func (s *Simulation) endGeneration() {
	q := s.filter.Query()
	for q.Next() {
		_, _, _, org, _, lin, _, _ := q.Get()
		if s.brains[org.ID] == nil {
			continue
		}
		s.niches[org.Species].AccumulateFitness(lin.Clade, float64(s.fitness(org.ID)))
	}
	for _, n := range s.niches {
		n.EndGeneration()
	}
}
