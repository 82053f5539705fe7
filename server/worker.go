package server

import (
	"runtime"
	"sync"
)

// A workerPool runs CPU-heavy jobs — chunk serialization — off the
// peer and tick tasks. Size defaults to the
// available hardware parallelism.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	p := &workerPool{tasks: make(chan func(), size*4)}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// submit queues a job; it blocks only when the queue is full, which
// back-pressures the producer rather than the pool.
func (p *workerPool) submit(task func()) {
	p.tasks <- task
}

func (p *workerPool) close() {
	p.once.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}
