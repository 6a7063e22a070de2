package helper

import (
	"github.com/fadendb/faden-go/livestore"
)

// InlineDispatcher runs every submitted job synchronously on the calling
// goroutine. Dispatching through it resolves the future before the dispatch
// call returns, so tests exercise the worker-won-the-race delivery path
// deterministically, without sleeps or polling.
type InlineDispatcher struct{}

// NewInlineDispatcher creates a dispatcher that executes jobs inline.
func NewInlineDispatcher() *InlineDispatcher {
	return &InlineDispatcher{}
}

// Submit implements the QueryDispatcher interface by running the job immediately.
func (d *InlineDispatcher) Submit(job func()) {
	job()
}

// Compile-time check to ensure InlineDispatcher implements QueryDispatcher.
var _ livestore.QueryDispatcher = (*InlineDispatcher)(nil)
