package freshen

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is the fixed pool of goroutines all freshening workers run on.
// One pool is shared across every request of a reader, which bounds the
// process-wide freshening concurrency regardless of request fan-out.
type WorkerPool struct {
	numWorkers int
	workCh     chan func()
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closed     atomic.Bool
	submitMu   sync.RWMutex
}

// NewWorkerPool creates a pool with numWorkers goroutines. Freshening work
// is dominated by store I/O, so sizing beyond GOMAXPROCS is reasonable.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 2 * runtime.GOMAXPROCS(0)
	}

	wp := &WorkerPool{
		numWorkers: numWorkers,
		workCh:     make(chan func(), numWorkers*2),
		stopCh:     make(chan struct{}),
	}

	wp.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.stopCh:
			// Drain queued work before exiting so accepted freshening tasks
			// still commit.
			for {
				select {
				case task, ok := <-wp.workCh:
					if !ok {
						return
					}
					task()
				default:
					return
				}
			}
		case task, ok := <-wp.workCh:
			if !ok {
				return
			}
			task()
		}
	}
}

// Submit enqueues a task and returns once it is accepted. Returns
// ErrPoolClosed after Close, or the context error if ctx is done before the
// queue accepts the task.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) error {
	wp.submitMu.RLock()
	defer wp.submitMu.RUnlock()

	if wp.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case wp.workCh <- task:
		return nil
	case <-wp.stopCh:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth returns the number of accepted tasks not yet picked up by a
// worker.
func (wp *WorkerPool) QueueDepth() int {
	return len(wp.workCh)
}

// Close shuts the pool down and waits for in-flight tasks to finish.
func (wp *WorkerPool) Close() {
	if !wp.closed.CompareAndSwap(false, true) {
		return
	}

	wp.submitMu.Lock()
	close(wp.stopCh)
	close(wp.workCh)
	wp.submitMu.Unlock()

	wp.wg.Wait()
}
