package livestore

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Results is a live, ordered collection of record keys produced by a query,
// goroutine-confined like the session that created it. Records keep their
// slot order; positions shift when other records are removed (compaction) or
// inserted, which is exactly what the delivered change sets describe.
//
// A collection from FindAll is materialized immediately. A collection from
// FindAllAsync starts unloaded and materializes when its completion is
// delivered on the owning goroutine; that first delivery carries an
// Initial-classified change set whose raw diff spans registration to first
// result. Later deliveries, produced by Session.Refresh re-running the query,
// are classified Update and carry the positional diff between the previous
// and the new ordering.
type Results struct {
	session *Session
	spec    QuerySpec
	keys    []RowKeyUint
	version VersionUint
	loaded  bool

	pending  *pendingQuery
	queryID  uuid.UUID
	failure  error
	staleErr error
	callback *QueryCallback

	// initialPending marks the span between async dispatch and the first
	// delivered change set, which is classified Initial.
	initialPending bool

	listeners listenerSet[CollectionChangeListener]
}

func newResults(s *Session, spec QuerySpec) *Results {
	return &Results{session: s, spec: spec}
}

// materialize fills the collection from a synchronously executed query.
// Deliveries to listeners registered afterwards are Update-classified: the
// caller already saw the materialized set, so every later diff is a real
// change.
func (res *Results) materialize(result QueryResult) {
	res.keys = result.Keys
	res.version = result.Version
	res.loaded = true
}

// Table returns the table the collection's query scans.
func (res *Results) Table() string {
	return res.spec.Table()
}

// Len returns the number of records currently in the collection;
// zero while unloaded.
func (res *Results) Len() int {
	return len(res.keys)
}

// Keys returns the stable record keys in slot order.
func (res *Results) Keys() []RowKeyUint {
	return slices.Clone(res.keys)
}

// Version returns the engine version the collection was last materialized at.
func (res *Results) Version() VersionUint {
	return res.version
}

// Get returns the record at position i as an attached entity.
// Fails with ErrIndexOutOfRange outside [0, Len()) and with ErrInvalidState
// on a closed session.
func (res *Results) Get(i int) (*Entity, error) {
	if err := res.session.checkOpen(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(res.keys) {
		return nil, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, len(res.keys))
	}

	e := newEntity(res.session)
	e.setType(res.spec.Table())
	e.bind(newRowRef(res.spec.Table(), res.keys[i]), res.version)

	return e, nil
}

// IsLoaded reports whether the collection holds a materialized result: true
// if it was produced synchronously, or if the async query completed.
func (res *Results) IsLoaded() bool {
	return res.pending == nil || res.loaded
}

// Load forces synchronous completion of an async collection, blocking the
// owning goroutine until the pending query resolves and delivering the
// completion inline. Nil when already loaded or never dispatched; otherwise
// the worker's execution error or ErrStaleHandover, as for Entity.Load.
func (res *Results) Load(ctx context.Context) error {
	if err := res.session.checkOpen(); err != nil {
		return err
	}
	if res.pending == nil || res.loaded {
		return nil
	}

	_, _ = res.pending.await(ctx)
	if !res.pending.resolved() {
		return ctx.Err()
	}

	res.deliverCompletion()

	return res.completionOutcome()
}

// AddChangeListener registers a listener, notified on the owning goroutine
// with the collection and a classified change set: once when the async query
// completes (Initial), and on every Refresh whose re-run query produced a
// non-empty positional diff (Update). Registering an already-present listener
// is a no-op. Fails with ErrInvalidState when the session is closed.
func (res *Results) AddChangeListener(listener CollectionChangeListener) error {
	if err := res.session.checkOpen(); err != nil {
		return err
	}
	if listener == nil {
		return ErrNilListener
	}

	if res.listeners.add(listener) && res.listeners.len() == 1 {
		res.session.watchResults(res)
	}

	return nil
}

// RemoveChangeListener removes a listener by identity; unknown listeners are
// ignored. Fails with ErrInvalidState when the session is closed.
func (res *Results) RemoveChangeListener(listener CollectionChangeListener) error {
	if err := res.session.checkOpen(); err != nil {
		return err
	}
	if listener == nil {
		return ErrNilListener
	}

	if res.listeners.remove(listener) && res.listeners.len() == 0 {
		res.session.unwatchResults(res)
	}

	return nil
}

// RemoveAllChangeListeners drops every registered listener.
// Fails with ErrInvalidState when the session is closed.
func (res *Results) RemoveAllChangeListeners() error {
	if err := res.session.checkOpen(); err != nil {
		return err
	}

	res.listeners.removeAll()
	res.session.unwatchResults(res)

	return nil
}

// setPendingQuery registers the future produced by dispatch, running the
// completion synchronously inline when the worker already resolved it (same
// race handling as Entity.setPendingQuery).
func (res *Results) setPendingQuery(pq *pendingQuery) {
	res.pending = pq
	res.initialPending = true

	if pq.resolved() {
		res.deliverCompletion()
	}
}

// deliverCompletion consumes the resolved future exactly once, on the owning
// goroutine. A worker execution failure is retained, propagated through Load
// and OnError, and delivered to listeners as an Error-classified change set.
func (res *Results) deliverCompletion() {
	if res.session == nil || !res.session.IsOpen() {
		return
	}
	if res.pending == nil || !res.pending.resolved() {
		return
	}
	if res.loaded || res.failure != nil {
		return
	}

	token, err := res.pending.outcome()
	if err != nil {
		res.failure = err
		res.session.logError(logMsgCompletionFailed, err, logAttrQueryID, res.queryID.String())
		res.session.incrementCounter(metricQueryErrors, operationCompletion)
		res.invokeCallbackError(err)

		if res.listeners.len() > 0 {
			res.deliverChangeSet(newChangeSet(Diff{}, res.initialPending, err), operationCompletion)
		}

		return
	}

	res.onCompleted(token)
}

// onCompleted imports the handover token through the owning session,
// materializes the keys at the token's version, marks the collection loaded,
// and delivers the Initial change set exactly once for this transition.
func (res *Results) onCompleted(token *HandoverToken) {
	rows, err := res.session.importToken(token)
	if err != nil {
		res.staleErr = err

		return
	}

	previous := res.keys
	res.keys = make([]RowKeyUint, 0, len(rows))
	for _, row := range rows {
		res.keys = append(res.keys, row.key)
	}
	res.version = token.version
	res.staleErr = nil
	res.loaded = true

	res.session.logOperation(logMsgCompletionDelivered,
		logAttrQueryID, res.queryID.String(),
		logAttrTable, res.spec.Table(),
		logAttrMatchCount, len(res.keys))
	res.session.incrementCounter(metricCompletionsDelivered, operationCompletion)

	res.invokeCallbackSuccess()

	if res.listeners.len() > 0 {
		// The raw diff spans "query registered" to "first result": with
		// nothing materialized before, everything arrives as an insertion.
		diff := diffKeys(previous, res.keys, nil)
		res.deliverChangeSet(newChangeSet(diff, res.initialPending, nil), operationCompletion)
	}

	res.initialPending = false
}

// completionOutcome reports the retained delivery outcome for Load.
func (res *Results) completionOutcome() error {
	switch {
	case res.loaded:
		return nil
	case res.failure != nil:
		return res.failure
	default:
		return res.staleErr
	}
}

// refreshAndNotify re-runs the query against the refreshed session version,
// diffs the previous ordering against the new one, and delivers an
// Update-classified change set when anything changed. Runs on the owning
// goroutine during Session.Refresh; skipped while the collection is unloaded
// or unobserved.
func (res *Results) refreshAndNotify() {
	if res.listeners.len() == 0 || !res.loaded {
		return
	}

	result, err := res.session.executeOnOwner(res.spec)
	if err != nil {
		res.deliverChangeSet(newChangeSet(Diff{}, false, err), operationRefresh)

		return
	}

	baseline := res.version
	modified := func(key RowKeyUint) bool {
		version, live := res.session.engine.RowVersion(res.spec.Table(), key)

		return live && version > baseline
	}

	diff := diffKeys(res.keys, result.Keys, modified)
	res.keys = result.Keys
	res.version = result.Version

	if diff.IsEmpty() {
		return
	}

	res.deliverChangeSet(newChangeSet(diff, false, nil), operationRefresh)
}

// deliverChangeSet hands one freshly built change set to every listener
// registered at the start of the call, in registration order.
func (res *Results) deliverChangeSet(changes *ChangeSet, operation string) {
	res.session.logOperation(logMsgChangeSetDelivered,
		logAttrTable, res.spec.Table(),
		logAttrState, changes.State().String())
	res.session.incrementCounter(metricChangeSetsDelivered, operation)

	for _, listener := range res.listeners.snapshot() {
		listener.OnChange(res, changes)
	}
}

func (res *Results) invokeCallbackSuccess() {
	if res.callback == nil {
		return
	}

	if res.callback.BeforeDeliver != nil {
		res.callback.BeforeDeliver(res.session)
	}
	if res.callback.OnResults != nil {
		res.callback.OnResults(res)
	}
}

func (res *Results) invokeCallbackError(err error) {
	if res.callback == nil {
		return
	}

	if res.callback.BeforeDeliver != nil {
		res.callback.BeforeDeliver(res.session)
	}
	if res.callback.OnError != nil {
		res.callback.OnError(err)
	}
}
