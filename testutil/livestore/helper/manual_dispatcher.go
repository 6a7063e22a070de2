package helper

import (
	"sync"

	"github.com/fadendb/faden-go/livestore"
)

// Ensure ManualDispatcher implements livestore.QueryDispatcher
var _ livestore.QueryDispatcher = (*ManualDispatcher)(nil)

// ManualDispatcher queues submitted jobs until the test runs them explicitly.
// Dispatching through it leaves the returned handle unresolved, so tests can
// register listeners or inspect the not-yet-loaded state before driving the
// worker step with RunPending, all on the test goroutine.
type ManualDispatcher struct {
	mu    sync.Mutex
	queue []func()
}

// NewManualDispatcher creates a dispatcher with an empty job queue.
func NewManualDispatcher() *ManualDispatcher {
	return &ManualDispatcher{}
}

// Submit implements livestore.QueryDispatcher interface.
func (d *ManualDispatcher) Submit(job func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, job)
}

// RunPending executes every queued job on the calling goroutine, in submission
// order, and returns how many jobs ran. Jobs submitted while running are
// picked up by the next call.
func (d *ManualDispatcher) RunPending() int {
	d.mu.Lock()
	jobs := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, job := range jobs {
		job()
	}

	return len(jobs)
}

// PendingCount returns the number of queued jobs.
func (d *ManualDispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.queue)
}
