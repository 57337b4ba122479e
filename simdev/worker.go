package simdev

import (
	"sync"
	"time"

	"github.com/sarchlab/gpucs/device"
)

// A job is one unit of work executed by a ring. Its done channel is closed
// once err is set.
type job struct {
	run  func() error
	done chan struct{}
	err  error
}

func newJob(run func() error) *job {
	return &job{run: run, done: make(chan struct{})}
}

// wait blocks until the job finishes and reports false on timeout.
func (j *job) wait(timeout time.Duration) bool {
	if timeout == device.TimeoutInfinite {
		<-j.done
		return true
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-j.done:
		return true
	case <-t.C:
		return false
	}
}

// worker executes jobs in the order they are pushed.
type worker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*job
	held    bool
	stopped bool
}

func newWorker() *worker {
	w := &worker{}
	w.cond = sync.NewCond(&w.mu)

	return w
}

func (w *worker) push(j *job) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.queue = append(w.queue, j)
	w.cond.Broadcast()
}

func (w *worker) hold(held bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.held = held
	w.cond.Broadcast()
}

func (w *worker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopped = true
	w.held = false
	w.cond.Broadcast()
}

func (w *worker) next() (*job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for (len(w.queue) == 0 || w.held) && !w.stopped {
		w.cond.Wait()
	}

	if len(w.queue) == 0 {
		return nil, false
	}

	j := w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]

	return j, true
}

func (w *worker) run() {
	for {
		j, ok := w.next()
		if !ok {
			return
		}

		j.err = j.run()
		close(j.done)
	}
}
