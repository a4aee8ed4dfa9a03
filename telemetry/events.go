// Package telemetry provides the event stream, metrics, window statistics,
// CSV output and the save file format.
package telemetry

import (
	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/world"
)

// EventType identifies telemetry events.
type EventType uint8

const (
	EventBorn EventType = iota
	EventDied
	EventKilled
	EventAte
	EventDiagnostic
	EventNutrient
	EventQuality
)

var eventNames = [...]string{"born", "died", "killed", "ate", "diagnostic", "nutrient", "quality"}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// Event is one entry of the outbound event stream.
type Event struct {
	Type    EventType
	Frame   uint64
	ID      uint64
	Species components.Species

	// Optional fields depending on event type
	Parents [2]uint64             // born; 0 when absent
	Target  uint64                // killed: victim
	Cause   components.DeathCause // died
	Food    world.FoodKind        // ate
	Amount  float32               // ate: energy; nutrient: biomass
	X, Y, Z float32               // died, nutrient
	Level   int                   // quality: new level
	Message string                // diagnostic, quality
}

// NewBornEvent creates a birth event.
func NewBornEvent(frame, id uint64, species components.Species, parents [2]uint64) Event {
	return Event{Type: EventBorn, Frame: frame, ID: id, Species: species, Parents: parents}
}

// NewDiedEvent creates a death event.
func NewDiedEvent(frame, id uint64, species components.Species, cause components.DeathCause, p components.Position) Event {
	return Event{Type: EventDied, Frame: frame, ID: id, Species: species, Cause: cause, X: p.X, Y: p.Y, Z: p.Z}
}

// NewKilledEvent creates a kill event.
func NewKilledEvent(frame, killer uint64, species components.Species, victim uint64) Event {
	return Event{Type: EventKilled, Frame: frame, ID: killer, Species: species, Target: victim}
}

// NewAteEvent creates a feeding event.
func NewAteEvent(frame, id uint64, species components.Species, kind world.FoodKind, amount float32) Event {
	return Event{Type: EventAte, Frame: frame, ID: id, Species: species, Food: kind, Amount: amount}
}

// NewNutrientEvent reports a fully decayed corpse returning biomass to the
// soil.
func NewNutrientEvent(frame uint64, x, z, biomass float32) Event {
	return Event{Type: EventNutrient, Frame: frame, X: x, Z: z, Amount: biomass}
}

// NewDiagnosticEvent reports a runtime fault that was handled.
func NewDiagnosticEvent(frame, id uint64, msg string) Event {
	return Event{Type: EventDiagnostic, Frame: frame, ID: id, Message: msg}
}

// NewQualityEvent reports an autoscaler level change.
func NewQualityEvent(frame uint64, level int, reason string) Event {
	return Event{Type: EventQuality, Frame: frame, Level: level, Message: reason}
}
