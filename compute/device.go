package compute

import (
	"errors"
	"sync"
	"time"

	"github.com/pthm-cable/forge/systems"
)

var (
	// ErrDispatchFailed is returned when the device rejects a batch.
	ErrDispatchFailed = errors.New("compute: dispatch failed")
	// ErrFenceTimeout is returned when a fence does not signal in time.
	ErrFenceTimeout = errors.New("compute: fence timed out")
	// ErrDeviceClosed is returned by a closed device.
	ErrDeviceClosed = errors.New("compute: device closed")
)

// Fence signals completion of one dispatch.
type Fence interface {
	// Wait blocks until the dispatch completes or timeout elapses.
	Wait(timeout time.Duration) error
	// Elapsed is the kernel time of a completed dispatch.
	Elapsed() time.Duration
}

// Device runs kernel batches asynchronously.
type Device interface {
	Name() string
	// Dispatch starts evaluating b and returns without waiting. b must not
	// be touched until the fence signals.
	Dispatch(b *AgentBuffer) (Fence, error)
	Close() error
}

type fence struct {
	done    chan struct{}
	elapsed time.Duration
}

func newFence() *fence { return &fence{done: make(chan struct{})} }

func (f *fence) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-f.done
		return nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-f.done:
		return nil
	case <-t.C:
		return ErrFenceTimeout
	}
}

func (f *fence) Elapsed() time.Duration {
	select {
	case <-f.done:
		return f.elapsed
	default:
		return 0
	}
}

// Fault is an injected device failure.
type Fault uint8

const (
	FaultNone Fault = iota
	FaultFail       // Dispatch returns ErrDispatchFailed
	FaultHang       // the fence never signals
	FaultSlow       // the dispatch sleeps for the configured delay first
)

// SoftwareDevice evaluates the kernel on a worker pool, one dispatch per
// behaviour family. It stands in for a GPU with the same contract.
type SoftwareDevice struct {
	pols  *systems.PolicyTable
	pool  *Pool
	width int

	mu     sync.Mutex
	faults []Fault
	delay  time.Duration
	closed chan struct{}
	once   sync.Once
	active sync.WaitGroup
}

// NewSoftwareDevice creates a device over pool. width bounds the chunks
// per family dispatch; <= 0 means one per worker.
func NewSoftwareDevice(pols *systems.PolicyTable, pool *Pool, width int) *SoftwareDevice {
	return &SoftwareDevice{
		pols:   pols,
		pool:   pool,
		width:  width,
		closed: make(chan struct{}),
	}
}

// Name implements Device.
func (d *SoftwareDevice) Name() string { return "software" }

// SetWidth changes the dispatch width; the autoscaler narrows it on lower
// quality levels.
func (d *SoftwareDevice) SetWidth(w int) {
	d.mu.Lock()
	d.width = w
	d.mu.Unlock()
}

// Inject queues faults for the next dispatches, in order.
func (d *SoftwareDevice) Inject(faults ...Fault) {
	d.mu.Lock()
	d.faults = append(d.faults, faults...)
	d.mu.Unlock()
}

// SetSlowDelay sets the delay used by FaultSlow.
func (d *SoftwareDevice) SetSlowDelay(delay time.Duration) {
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

func (d *SoftwareDevice) nextFault() (Fault, int, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := FaultNone
	if len(d.faults) > 0 {
		f = d.faults[0]
		d.faults = d.faults[1:]
	}
	return f, d.width, d.delay
}

// Dispatch implements Device.
func (d *SoftwareDevice) Dispatch(b *AgentBuffer) (Fence, error) {
	select {
	case <-d.closed:
		return nil, ErrDeviceClosed
	default:
	}
	fault, width, delay := d.nextFault()
	if fault == FaultFail {
		return nil, ErrDispatchFailed
	}

	f := newFence()
	d.active.Add(1)
	go func() {
		defer d.active.Done()
		switch fault {
		case FaultHang:
			// Never signals; released without writing on Close.
			<-d.closed
			return
		case FaultSlow:
			select {
			case <-time.After(delay):
			case <-d.closed:
				return
			}
		}
		start := time.Now()
		b.evaluate(d.pols, d.pool, width)
		f.elapsed = time.Since(start)
		close(f.done)
	}()
	return f, nil
}

// Close releases hung dispatches and waits for in-flight ones.
func (d *SoftwareDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	d.active.Wait()
	return nil
}
