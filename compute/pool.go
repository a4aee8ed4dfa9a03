// Package compute runs the behaviour kernel over packed agent batches. It
// provides a worker pool, a software compute device that dispatches the
// kernel per behaviour family, and a double-buffered pipeline that masks
// dispatch latency by consuming results one frame late.
package compute

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum item count to fan out to workers.
// Below this, a single goroutine is faster.
const parallelThreshold = 64

// chunk is a range of items for one worker.
type chunk struct {
	start, end int
	fn         func(worker, start, end int)
	wg         *sync.WaitGroup
}

// Pool is a set of persistent worker goroutines. Run may be called from
// several goroutines at once; each call waits only for its own chunks.
type Pool struct {
	numWorkers int

	workChan chan chunk
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewPool creates a pool with n workers; n <= 0 means GOMAXPROCS.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: n}
}

// Workers returns the number of workers.
func (p *Pool) Workers() int { return p.numWorkers }

// start launches the workers once.
func (p *Pool) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.workChan = make(chan chunk, p.numWorkers*2)
	p.stopChan = make(chan struct{})
	p.running = true
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop signals all workers to exit and waits for them. It must not race
// with Run.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	p.running = false
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case c := <-p.workChan:
			c.fn(id, c.start, c.end)
			c.wg.Done()
		}
	}
}

// Run splits [0, n) into at most width chunks and calls fn for each, in
// parallel when n is large enough. width <= 0 means one chunk per worker.
// Small inputs run inline on the caller's goroutine.
func (p *Pool) Run(n, width int, fn func(worker, start, end int)) {
	if n <= 0 {
		return
	}
	if n < parallelThreshold || p.numWorkers == 1 {
		fn(0, 0, n)
		return
	}
	p.start()

	if width <= 0 || width > p.numWorkers {
		width = p.numWorkers
	}
	size := (n + width - 1) / width

	var wg sync.WaitGroup
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		wg.Add(1)
		select {
		case p.workChan <- chunk{start: start, end: end, fn: fn, wg: &wg}:
		case <-p.stopChan:
			// Stopped mid-dispatch: finish inline.
			fn(0, start, end)
			wg.Done()
		}
	}
	wg.Wait()
}
