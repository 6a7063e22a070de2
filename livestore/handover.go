package livestore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// HandoverToken is an opaque, immutable, goroutine-safe reference to a query
// result computed against a specific storage version. A worker produces it;
// the owning goroutine imports it through its session, which re-materializes
// the referenced records as goroutine-confined handles. A token can be
// imported only while the importing session's version equals the version the
// result was computed at, and it can be consumed at most once.
type HandoverToken struct {
	spec     QuerySpec
	keys     []RowKeyUint
	version  VersionUint
	queryID  uuid.UUID
	consumed atomic.Bool
}

func newHandoverToken(spec QuerySpec, result QueryResult, queryID uuid.UUID) *HandoverToken {
	keys := make([]RowKeyUint, len(result.Keys))
	copy(keys, result.Keys)

	return &HandoverToken{
		spec:    spec,
		keys:    keys,
		version: result.Version,
		queryID: queryID,
	}
}

// Version returns the storage version the result was computed at.
func (t *HandoverToken) Version() VersionUint {
	return t.version
}

// QueryID returns the identifier assigned to the dispatched query.
func (t *HandoverToken) QueryID() uuid.UUID {
	return t.queryID
}

// Len returns the number of matched records.
func (t *HandoverToken) Len() int {
	return len(t.keys)
}

// consume marks the token used; only the first call succeeds.
func (t *HandoverToken) consume() error {
	if !t.consumed.CompareAndSwap(false, true) {
		return ErrHandoverConsumed
	}

	return nil
}

// release undoes a consume after a failed import so the token stays usable.
func (t *HandoverToken) release() {
	t.consumed.Store(false)
}

// pendingQuery is a single-resolution future yielding a handover token.
// The worker resolves it exactly once; the owning goroutine observes it
// through resolved and await. The closed channel publishes token and err.
type pendingQuery struct {
	done  chan struct{}
	once  sync.Once
	token *HandoverToken
	err   error
}

func newPendingQuery() *pendingQuery {
	return &pendingQuery{done: make(chan struct{})}
}

// resolve records the outcome; calls after the first are no-ops.
func (pq *pendingQuery) resolve(token *HandoverToken, err error) {
	pq.once.Do(func() {
		pq.token = token
		pq.err = err
		close(pq.done)
	})
}

// resolved reports whether the worker already resolved the future, without blocking.
func (pq *pendingQuery) resolved() bool {
	select {
	case <-pq.done:
		return true
	default:
		return false
	}
}

// await blocks until the future resolves or the context is canceled.
func (pq *pendingQuery) await(ctx context.Context) (*HandoverToken, error) {
	select {
	case <-pq.done:
		return pq.token, pq.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// outcome returns the resolution. It blocks until resolved, so callers check
// resolved first; the channel receive orders the reads after the worker's
// writes.
func (pq *pendingQuery) outcome() (*HandoverToken, error) {
	<-pq.done

	return pq.token, pq.err
}
