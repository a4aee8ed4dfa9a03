package sim

import (
	"log/slog"

	"github.com/pthm-cable/forge/telemetry"
)

// diagnostics rate-limits warnings: every occurrence becomes an event, but
// each key is logged only once.
type diagnostics struct {
	seen map[string]bool
}

func newDiagnostics() *diagnostics {
	return &diagnostics{seen: make(map[string]bool)}
}

// once reports whether key has not been seen before.
func (d *diagnostics) once(key string) bool {
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

// diagnose records a recoverable fault. id is 0 for faults that are not
// tied to one agent.
func (s *Simulation) diagnose(key string, id uint64, msg string, attrs ...any) {
	s.emit(telemetry.NewDiagnosticEvent(s.frame, id, msg))
	if s.diag.once(key) {
		slog.Warn(msg, append([]any{"tick", s.frame, "agent", id}, attrs...)...)
	}
}
