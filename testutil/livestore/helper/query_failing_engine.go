package helper

import (
	"context"
	"sync"

	"github.com/fadendb/faden-go/livestore"
)

// Ensure QueryFailingEngine still satisfies the write surface it wraps
var _ WritableEngine = (*QueryFailingEngine)(nil)

// QueryFailingEngine wraps a storage engine and fails ExecuteQuery on demand,
// for driving the worker-failure and refresh-failure paths.
type QueryFailingEngine struct {
	WritableEngine

	mu       sync.Mutex
	failWith error
}

// NewQueryFailingEngine wraps inner; queries pass through until
// FailQueriesWith arms a failure.
func NewQueryFailingEngine(inner WritableEngine) *QueryFailingEngine {
	return &QueryFailingEngine{WritableEngine: inner}
}

// FailQueriesWith makes every subsequent ExecuteQuery fail with err.
// Passing nil restores pass-through behavior.
func (e *QueryFailingEngine) FailQueriesWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failWith = err
}

// ExecuteQuery implements livestore.StorageEngine interface.
func (e *QueryFailingEngine) ExecuteQuery(ctx context.Context, spec livestore.QuerySpec) (livestore.QueryResult, error) {
	e.mu.Lock()
	failWith := e.failWith
	e.mu.Unlock()

	if failWith != nil {
		return livestore.QueryResult{}, failWith
	}

	return e.WritableEngine.ExecuteQuery(ctx, spec)
}
