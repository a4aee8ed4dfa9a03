package compute

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pthm-cable/forge/systems"
	"gonum.org/v1/gonum/blas/blas32"
)

// PipelineStats counts pipeline outcomes since creation.
type PipelineStats struct {
	Dispatches int
	Completed  int
	Fallbacks  int // batches evaluated on the CPU after a failed dispatch
	Timeouts   int // fences abandoned as hung
}

// Pipeline double-buffers kernel batches. A batch submitted in frame N is
// collected in frame N+1; a failed dispatch is evaluated on the CPU in the
// same frame; a hung fence is abandoned after the timeout and its batch
// evaluated on the CPU. There is no retry.
type Pipeline struct {
	dev     Device
	pols    *systems.PolicyTable
	pool    *Pool
	timeout time.Duration

	bufs [2]*AgentBuffer
	prev flight // submitted last frame
	cur  flight // submitted this frame

	lastKernel time.Duration
	stats      PipelineStats
}

type flight struct {
	buf   *AgentBuffer
	fence Fence
}

// NewPipeline creates a pipeline. dev may be nil, in which case every
// batch is evaluated on the CPU at submit time.
func NewPipeline(dev Device, pols *systems.PolicyTable, pool *Pool, timeout time.Duration, capacity int) *Pipeline {
	return &Pipeline{
		dev:     dev,
		pols:    pols,
		pool:    pool,
		timeout: timeout,
		bufs:    [2]*AgentBuffer{NewAgentBuffer(capacity), NewAgentBuffer(capacity)},
	}
}

// Device returns the device, or nil when running CPU only.
func (p *Pipeline) Device() Device { return p.dev }

// Pending reports whether a batch is waiting to be collected.
func (p *Pipeline) Pending() bool { return p.prev.buf != nil || p.cur.buf != nil }

// Begin returns an empty buffer for this frame's batch. The buffer handed
// out by the previous Collect is reused, so callers must be done with it.
func (p *Pipeline) Begin(frame uint64) *AgentBuffer {
	b := p.bufs[0]
	if b == p.prev.buf || b == p.cur.buf {
		b = p.bufs[1]
	}
	b.Reset(frame)
	return b
}

// Submit dispatches b. When the batch could not be queued on the device
// it is evaluated on the CPU immediately and returned so the caller can
// apply it this frame; err then says why. A queued batch returns nil.
func (p *Pipeline) Submit(b *AgentBuffer) (*AgentBuffer, error) {
	if b.Len() == 0 {
		return nil, nil
	}
	if p.dev == nil {
		b.evaluate(p.pols, p.pool, 0)
		return b, nil
	}
	if p.cur.buf != nil {
		// Collect was skipped; the oldest batch is dropped rather than
		// letting frames pile up.
		if p.prev.buf != nil {
			slog.Warn("compute batch dropped before collect", "frame", p.prev.buf.Frame)
			p.abandon(&p.prev)
		}
		p.prev, p.cur = p.cur, flight{}
	}

	p.stats.Dispatches++
	f, err := p.dev.Dispatch(b)
	if err != nil {
		p.stats.Fallbacks++
		b.evaluate(p.pols, p.pool, 0)
		return b, fmt.Errorf("dispatch on %s: %w", p.dev.Name(), err)
	}
	p.cur = flight{buf: b, fence: f}
	return nil, nil
}

// Collect waits for the batch submitted last frame and returns it, or nil
// when there was none. It then makes this frame's batch the one to collect
// next frame. A fence that misses the timeout is abandoned and the batch
// evaluated on the CPU; the batch is still returned, with ErrFenceTimeout.
func (p *Pipeline) Collect() (*AgentBuffer, error) {
	fl := p.prev
	p.prev, p.cur = p.cur, flight{}
	if fl.buf == nil {
		return nil, nil
	}

	if err := fl.fence.Wait(p.timeout); err != nil {
		p.stats.Timeouts++
		slog.Warn("compute fence abandoned",
			"frame", fl.buf.Frame,
			"jobs", fl.buf.Len(),
			"timeout", p.timeout,
		)
		// The device may still own the buffer; evaluate a copy.
		cpu := p.replace(fl.buf)
		cpu.evaluate(p.pols, p.pool, 0)
		return cpu, ErrFenceTimeout
	}
	p.stats.Completed++
	p.lastKernel = fl.fence.Elapsed()
	return fl.buf, nil
}

// replace swaps a buffer the device may still own out of the ring and
// returns a fresh buffer holding the same batch.
func (p *Pipeline) replace(b *AgentBuffer) *AgentBuffer {
	fresh := NewAgentBuffer(b.Len())
	fresh.Frame = b.Frame
	fresh.Params = b.Params
	fresh.State.ID = append(fresh.State.ID, b.State.ID...)
	fresh.State.Species = append(fresh.State.Species, b.State.Species...)
	fresh.State.X = append(fresh.State.X, b.State.X...)
	fresh.State.Z = append(fresh.State.Z, b.State.Z...)
	fresh.State.VX = append(fresh.State.VX, b.State.VX...)
	fresh.State.VZ = append(fresh.State.VZ, b.State.VZ...)
	fresh.State.Cells = cloneCells(&b.State.Cells)
	fresh.Jobs = append(fresh.Jobs, b.Jobs...)
	fresh.Entities = append(fresh.Entities, b.Entities...)
	for i := range p.bufs {
		if p.bufs[i] == b {
			p.bufs[i] = fresh
		}
	}
	return fresh
}

func cloneCells(t *systems.CellTable) systems.CellTable {
	c := *t
	c.Start = append([]int32(nil), t.Start...)
	c.Count = append([]int32(nil), t.Count...)
	c.Slots = append([]int32(nil), t.Slots...)
	return c
}

// abandon drops a batch without reading it. The device may still write
// to the buffer, so it leaves the ring.
func (p *Pipeline) abandon(fl *flight) {
	if fl.buf == nil {
		return
	}
	p.replace(fl.buf)
	*fl = flight{}
}

// Drain waits up to the timeout for in-flight batches and discards them.
func (p *Pipeline) Drain() {
	for _, fl := range []*flight{&p.prev, &p.cur} {
		if fl.buf == nil {
			continue
		}
		if err := fl.fence.Wait(p.timeout); errors.Is(err, ErrFenceTimeout) {
			p.stats.Timeouts++
		}
		p.abandon(fl)
	}
}

// Close drains and closes the device.
func (p *Pipeline) Close() error {
	p.Drain()
	if p.dev == nil {
		return nil
	}
	return p.dev.Close()
}

// KernelTime is the duration of the last completed dispatch.
func (p *Pipeline) KernelTime() time.Duration { return p.lastKernel }

// Stats returns pipeline counters.
func (p *Pipeline) Stats() PipelineStats { return p.stats }

// Advance adds dt·v to each position column in place. It is the CULLED
// tier update: velocity integration only, no kernel.
func Advance(pos, vel []float32, dt float32) {
	n := min(len(pos), len(vel))
	if n == 0 {
		return
	}
	blas32.Axpy(dt,
		blas32.Vector{N: n, Inc: 1, Data: vel[:n]},
		blas32.Vector{N: n, Inc: 1, Data: pos[:n]},
	)
}
