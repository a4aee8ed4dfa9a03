package world

import (
	"sync"

	"github.com/pthm-cable/forge/components"
)

// CommandKind identifies an external request.
type CommandKind uint8

const (
	CmdSpawn CommandKind = iota
	CmdDisaster
	CmdSave
	CmdLoad
)

func (k CommandKind) String() string {
	switch k {
	case CmdSpawn:
		return "spawn"
	case CmdDisaster:
		return "disaster"
	case CmdSave:
		return "save"
	case CmdLoad:
		return "load"
	}
	return "unknown"
}

// Command is one external request. Fields not used by a kind are ignored.
// Reply, when set, receives the outcome of save and load requests.
type Command struct {
	Kind    CommandKind
	Species components.Species
	Count   int
	X, Y, Z float32
	Radius  float32
	Damage  float32
	Path    string
	Reply   chan<- error
}

// SpawnCommand requests count agents of species s around (x, y, z).
func SpawnCommand(s components.Species, count int, x, y, z float32) Command {
	return Command{Kind: CmdSpawn, Species: s, Count: count, X: x, Y: y, Z: z}
}

// DisasterCommand damages every agent within radius of (x, z).
func DisasterCommand(x, z, radius, damage float32) Command {
	return Command{Kind: CmdDisaster, X: x, Z: z, Radius: radius, Damage: damage}
}

// CommandQueue collects commands from any goroutine; the simulation drains
// it once per frame.
type CommandQueue struct {
	mu      sync.Mutex
	pending []Command
}

// NewCommandQueue creates an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{}
}

// Push enqueues a command.
func (q *CommandQueue) Push(c Command) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()
}

// Drain appends all pending commands to dst in arrival order and empties
// the queue.
func (q *CommandQueue) Drain(dst []Command) []Command {
	q.mu.Lock()
	dst = append(dst, q.pending...)
	clear(q.pending)
	q.pending = q.pending[:0]
	q.mu.Unlock()
	return dst
}

// Len returns the number of pending commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear drops every pending command. Pending replies receive nothing.
func (q *CommandQueue) Clear() {
	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
}
