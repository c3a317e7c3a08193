package software

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// workerPool runs row bands of a dispatch on a fixed set of goroutines.
//
// Each worker has its own queue and steals from the others when idle, so
// bands that hit more geometry than others do not stall the dispatch.
type workerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// newWorkerPool starts a pool. If workers is 0 or negative, GOMAXPROCS is
// used.
func newWorkerPool(workers int) *workerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &workerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()
	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

func (p *workerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *workerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// executeAll runs every item and waits for all of them. After close it
// runs the items on the calling goroutine.
func (p *workerPool) executeAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for i, fn := range work {
		wrapped := func() {
			defer wg.Done()
			fn()
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	wg.Wait()
}

// rows splits [0, h) into bands and runs fn on each band in parallel.
func (p *workerPool) rows(h int, fn func(y0, y1 int)) {
	if h <= 0 {
		return
	}
	bands := min(h, p.workers*4)
	step := (h + bands - 1) / bands
	work := make([]func(), 0, bands)
	for y0 := 0; y0 < h; y0 += step {
		y1 := min(y0+step, h)
		work = append(work, func() { fn(y0, y1) })
	}
	p.executeAll(work)
}

// close stops the workers after draining queued work. Safe to call more
// than once.
func (p *workerPool) close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}
