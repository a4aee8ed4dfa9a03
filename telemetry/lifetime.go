package telemetry

// LifetimeStats tracks one agent's record while it lives.
type LifetimeStats struct {
	BirthFrame uint64
	Generation uint32

	Kills    int
	Children int
	Meals    int
	Foraged  float32

	PeakEnergy float32
}

// Fitness scores an agent's life so far. Children dominate; survival,
// kills and foraging break ties.
func (s *LifetimeStats) Fitness(frame uint64, dt float32) float32 {
	age := float32(frame-s.BirthFrame) * dt
	return float32(s.Children)*10 + age*0.05 + float32(s.Kills)*2 + s.Foraged*0.01
}

// LifetimeTracker manages per-agent lifetime statistics keyed by agent id.
type LifetimeTracker struct {
	stats map[uint64]*LifetimeStats
}

// NewLifetimeTracker creates an empty tracker.
func NewLifetimeTracker() *LifetimeTracker {
	return &LifetimeTracker{stats: make(map[uint64]*LifetimeStats)}
}

// Register starts tracking a newborn.
func (lt *LifetimeTracker) Register(id, birthFrame uint64, generation uint32) {
	lt.stats[id] = &LifetimeStats{BirthFrame: birthFrame, Generation: generation}
}

// Get returns the stats for id, or nil.
func (lt *LifetimeTracker) Get(id uint64) *LifetimeStats {
	return lt.stats[id]
}

// Remove stops tracking id and returns its final stats.
func (lt *LifetimeTracker) Remove(id uint64) *LifetimeStats {
	s := lt.stats[id]
	delete(lt.stats, id)
	return s
}

// Observe updates counters from an event.
func (lt *LifetimeTracker) Observe(e Event) {
	switch e.Type {
	case EventBorn:
		for _, p := range e.Parents {
			if s := lt.stats[p]; p != 0 && s != nil {
				s.Children++
			}
		}
	case EventKilled:
		if s := lt.stats[e.ID]; s != nil {
			s.Kills++
		}
	case EventAte:
		if s := lt.stats[e.ID]; s != nil {
			s.Meals++
			s.Foraged += e.Amount
		}
	}
}

// UpdateEnergy tracks peak energy.
func (lt *LifetimeTracker) UpdateEnergy(id uint64, energy float32) {
	if s := lt.stats[id]; s != nil && energy > s.PeakEnergy {
		s.PeakEnergy = energy
	}
}

// Fitness returns the fitness of id, or 0 when untracked.
func (lt *LifetimeTracker) Fitness(id, frame uint64, dt float32) float32 {
	if s := lt.stats[id]; s != nil {
		return s.Fitness(frame, dt)
	}
	return 0
}

// Count returns the number of tracked agents.
func (lt *LifetimeTracker) Count() int { return len(lt.stats) }

// Reset forgets everything, as when loading a save file.
func (lt *LifetimeTracker) Reset() { clear(lt.stats) }
