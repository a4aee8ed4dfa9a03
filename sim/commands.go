package sim

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/systems"
	"github.com/pthm-cable/forge/world"
)

// processCommands applies every queued external command. Commands run
// before the frame's snapshot is taken, so their effects are seen by the
// whole frame.
func (s *Simulation) processCommands() {
	s.cmdBuf = s.commands.Drain(s.cmdBuf[:0])
	for i := range s.cmdBuf {
		cmd := &s.cmdBuf[i]
		var err error
		switch cmd.Kind {
		case world.CmdSpawn:
			err = s.spawnCommand(cmd)
		case world.CmdDisaster:
			s.disaster(cmd)
		case world.CmdSave:
			err = s.Save(cmd.Path)
		case world.CmdLoad:
			err = s.Load(cmd.Path)
		default:
			err = fmt.Errorf("unknown command kind %d", cmd.Kind)
		}
		if err != nil {
			s.diagnose("command_"+cmd.Kind.String(), 0, "command failed", "command", cmd.Kind.String(), "error", err)
		}
		reply(cmd, err)
	}
	clear(s.cmdBuf)
}

// reply delivers a command's outcome without blocking the frame. Callers
// waiting on a reply must give the channel room for one value.
func reply(cmd *world.Command, err error) {
	if cmd.Reply == nil {
		return
	}
	select {
	case cmd.Reply <- err:
	default:
		slog.Warn("command reply dropped", "command", cmd.Kind.String())
	}
}

func (s *Simulation) spawnCommand(cmd *world.Command) error {
	if cmd.Count < 1 {
		return fmt.Errorf("spawn %s: count %d", cmd.Species, cmd.Count)
	}
	around := components.Position{X: cmd.X, Y: cmd.Y, Z: cmd.Z}
	for range cmd.Count {
		if err := s.spawnRandom(cmd.Species, &around); err != nil {
			return err
		}
	}
	slog.Info("spawned agents", "species", cmd.Species.String(), "count", cmd.Count, "x", cmd.X, "z", cmd.Z)
	return nil
}

// disaster damages every agent within the radius. The dead are retired in
// the lifecycle phase.
func (s *Simulation) disaster(cmd *world.Command) {
	rSq := cmd.Radius * cmd.Radius
	hit, killed := 0, 0
	q := s.filter.Query()
	for q.Next() {
		pos, _, _, _, phys, _, _, _ := q.Get()
		dx, dz := pos.X-cmd.X, pos.Z-cmd.Z
		if dx*dx+dz*dz > rSq {
			continue
		}
		hit++
		if systems.Damage(phys, cmd.Damage, components.CauseDisaster) {
			killed++
		}
	}
	slog.Info("disaster", "x", cmd.X, "z", cmd.Z, "radius", cmd.Radius, "hit", hit, "killed", killed)
}
