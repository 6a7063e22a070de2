package livestore

// QueryDispatcher runs query jobs off the owning goroutine.
// Submit must never block the caller; the protocol's "dispatch returns
// immediately" guarantee rests on it. Implementations decide how much
// concurrency to allow.
type QueryDispatcher interface {
	Submit(job func())
}

const defaultDispatcherSlots = 4

// boundedDispatcher runs every job on its own goroutine, gated by a channel
// semaphore: at most cap(slots) jobs execute at once, the rest park on the
// semaphore without affecting the submitting goroutine.
type boundedDispatcher struct {
	slots chan struct{}
}

// NewBoundedDispatcher returns the default dispatcher with the given
// concurrency bound; non-positive sizes fall back to a small default.
func NewBoundedDispatcher(size int) QueryDispatcher {
	if size <= 0 {
		size = defaultDispatcherSlots
	}

	return &boundedDispatcher{slots: make(chan struct{}, size)}
}

func (d *boundedDispatcher) Submit(job func()) {
	go func() {
		d.slots <- struct{}{}
		defer func() { <-d.slots }()

		job()
	}()
}

// Ensure boundedDispatcher implements QueryDispatcher.
var _ QueryDispatcher = (*boundedDispatcher)(nil)
