package compute

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/forge/systems"
)

// numFamilies is the number of distinct family bitmasks.
const numFamilies = 1 << 4

// AgentBuffer is one packed batch: the frame-start state every kernel
// reads, the jobs to run, and a result slot per job. A buffer is owned by
// the device between Dispatch and the fence signalling.
type AgentBuffer struct {
	Frame  uint64
	State  systems.KernelState
	Params systems.SteerParams

	Jobs    []systems.SteerInput
	Results []systems.SteerOutput

	// Entities maps a job back to its agent; it is never read by kernels.
	Entities []ecs.Entity

	batches [numFamilies][]int32
}

// NewAgentBuffer creates a buffer sized for n agents.
func NewAgentBuffer(n int) *AgentBuffer {
	b := &AgentBuffer{}
	b.State.ID = make([]uint64, 0, n)
	b.Jobs = make([]systems.SteerInput, 0, n)
	b.Results = make([]systems.SteerOutput, 0, n)
	b.Entities = make([]ecs.Entity, 0, n)
	return b
}

// Reset clears the buffer for a new frame.
func (b *AgentBuffer) Reset(frame uint64) {
	b.Frame = frame
	b.State.Reset()
	b.Jobs = b.Jobs[:0]
	b.Results = b.Results[:0]
	b.Entities = b.Entities[:0]
	for i := range b.batches {
		b.batches[i] = b.batches[i][:0]
	}
}

// AddJob queues one agent for the kernel.
func (b *AgentBuffer) AddJob(e ecs.Entity, in systems.SteerInput) {
	b.Jobs = append(b.Jobs, in)
	b.Entities = append(b.Entities, e)
}

// Len returns the number of queued jobs.
func (b *AgentBuffer) Len() int { return len(b.Jobs) }

// seal sizes the result slots and groups jobs by behaviour family so each
// family is dispatched as its own kernel.
func (b *AgentBuffer) seal(pols *systems.PolicyTable) {
	if cap(b.Results) < len(b.Jobs) {
		b.Results = make([]systems.SteerOutput, len(b.Jobs))
	}
	b.Results = b.Results[:len(b.Jobs)]
	for i := range b.batches {
		b.batches[i] = b.batches[i][:0]
	}
	for i := range b.Jobs {
		var fam systems.Family
		if pol := pols[b.Jobs[i].Species]; pol != nil {
			fam = pol.Family
		}
		b.batches[fam%numFamilies] = append(b.batches[fam%numFamilies], int32(i))
	}
}

// evaluate runs the kernel over every job on the pool. It is the CPU
// path and the body of the software device.
func (b *AgentBuffer) evaluate(pols *systems.PolicyTable, pool *Pool, width int) {
	b.seal(pols)
	for _, batch := range b.batches {
		b.runBatch(batch, pols, pool, width)
	}
}

func (b *AgentBuffer) runBatch(batch []int32, pols *systems.PolicyTable, pool *Pool, width int) {
	if len(batch) == 0 {
		return
	}
	run := func(_, start, end int) {
		for _, j := range batch[start:end] {
			b.Results[j] = systems.Steer(&b.State, pols, &b.Params, &b.Jobs[j])
		}
	}
	if pool == nil {
		run(0, 0, len(batch))
		return
	}
	pool.Run(len(batch), width, run)
}

// Evaluate runs the kernel over b on the calling goroutine and pool.
func Evaluate(b *AgentBuffer, pols *systems.PolicyTable, pool *Pool) {
	b.evaluate(pols, pool, 0)
}
