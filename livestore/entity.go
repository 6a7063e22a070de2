package livestore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// Entity is a live, goroutine-confined reference to one stored record.
// It moves through three states: unbound (no row yet), attached (bound to a
// live row), and invalid (permanently, after Remove). An entity produced by
// an asynchronous query additionally carries a pending query until the
// completion is delivered on the owning goroutine.
//
// All methods must be called on the goroutine owning the session; none of the
// entity's state is locked.
type Entity struct {
	row      *RowRef
	session  *Session
	typeName string

	pending   *pendingQuery
	queryID   uuid.UUID
	completed bool
	failure   error
	staleErr  error
	callback  *QueryCallback

	listeners listenerSet[ChangeListener]

	// pinnedVersion is the engine version the bound row was materialized at;
	// Refresh notifies listeners only for writes committed after it.
	pinnedVersion VersionUint
	sawDetached   bool
}

func newEntity(s *Session) *Entity {
	return &Entity{session: s}
}

// setType records the declared type tag (the table name) for the entity.
func (e *Entity) setType(typeName string) {
	e.typeName = typeName
}

// bind attaches the entity to a row materialized at the given engine version.
// Precondition: the entity is unbound.
func (e *Entity) bind(row *RowRef, at VersionUint) {
	e.row = row
	e.pinnedVersion = at
}

// Table returns the declared type tag of the entity, which is the name of the
// table the record lives in. Empty for an entity that was never typed.
func (e *Entity) Table() string {
	return e.typeName
}

// Row returns the entity's current row reference: nil while unbound, the
// invalid sentinel after removal.
func (e *Entity) Row() *RowRef {
	return e.row
}

// IsValid reports whether the entity is still usable: bound to a non-sentinel
// row that is attached in live storage, with an open session. Always false for
// a standalone (never-bound) entity, after Remove, and after session close.
func (e *Entity) IsValid() bool {
	if e.row == nil || e.row == invalidRow {
		return false
	}
	if e.session == nil || !e.session.IsOpen() {
		return false
	}

	return e.session.engine.RowAttached(e.row.table, e.row.key)
}

// Remove physically erases the record. The engine keeps storage dense by
// moving the last record of the table into the freed slot, so erasing is O(1)
// but the slot positions of other records change. The entity's row becomes the
// invalid sentinel permanently; removal is irreversible.
//
// Fails with ErrInvalidState when the entity is unbound, already removed, or
// the session is closed.
func (e *Entity) Remove() error {
	if err := e.session.checkOpen(); err != nil {
		return err
	}
	if e.row == invalidRow {
		return fmt.Errorf("%w: entity was already removed", ErrInvalidState)
	}
	if e.row == nil {
		return fmt.Errorf("%w: entity is not bound to a row", ErrInvalidState)
	}

	if err := e.session.removeRow(e.row); err != nil {
		return err
	}

	e.row = invalidRow

	return nil
}

// IsLoaded reports whether the entity's query has produced a result: true if
// no async query was ever dispatched, or if the dispatched query completed.
// A dispatched entity reports false until its completion is delivered on the
// owning goroutine (by Refresh, Load, or inline when the worker won the
// dispatch race).
func (e *Entity) IsLoaded() bool {
	return e.pending == nil || e.completed
}

// Load forces synchronous completion: it blocks the owning goroutine until
// the pending query resolves, then delivers the completion inline. This is
// the one deliberate exception to the never-block default, for call sites
// needing the value immediately after dispatch.
//
// Returns nil when the entity was never dispatched or already completed.
// Returns the worker's execution error, or ErrStaleHandover when the result
// could not be imported at the session's current version (a later Refresh may
// re-align the versions, after which Load can succeed). Fails with
// ErrInvalidState on a removed entity or closed session, leaving the entity
// unchanged.
func (e *Entity) Load(ctx context.Context) error {
	if err := e.session.checkOpen(); err != nil {
		return err
	}
	if e.row == invalidRow {
		return fmt.Errorf("%w: entity was removed", ErrInvalidState)
	}
	if e.pending == nil || e.completed {
		return nil
	}

	_, _ = e.pending.await(ctx)
	if !e.pending.resolved() {
		return ctx.Err()
	}

	e.deliverCompletion()

	return e.completionOutcome()
}

// AddChangeListener registers a listener, notified on the owning goroutine
// when the entity's async query completes and on every Refresh that finds the
// record written or detached. Registering an already-present listener is a
// no-op. Fails with ErrInvalidState when the session is closed.
func (e *Entity) AddChangeListener(listener ChangeListener) error {
	if err := e.session.checkOpen(); err != nil {
		return err
	}
	if listener == nil {
		return ErrNilListener
	}

	if e.listeners.add(listener) && e.listeners.len() == 1 {
		e.session.watchEntity(e)
	}

	return nil
}

// RemoveChangeListener removes a listener by identity; unknown listeners are
// ignored. Fails with ErrInvalidState when the session is closed.
func (e *Entity) RemoveChangeListener(listener ChangeListener) error {
	if err := e.session.checkOpen(); err != nil {
		return err
	}
	if listener == nil {
		return ErrNilListener
	}

	if e.listeners.remove(listener) && e.listeners.len() == 0 {
		e.session.unwatchEntity(e)
	}

	return nil
}

// RemoveAllChangeListeners drops every registered listener.
// Fails with ErrInvalidState when the session is closed.
func (e *Entity) RemoveAllChangeListeners() error {
	if err := e.session.checkOpen(); err != nil {
		return err
	}

	e.listeners.removeAll()
	e.session.unwatchEntity(e)

	return nil
}

// Payload returns the record's JSON payload read from live storage.
// Fails with ErrInvalidState for unbound or removed entities.
func (e *Entity) Payload() ([]byte, error) {
	if err := e.session.checkOpen(); err != nil {
		return nil, err
	}
	if e.row == nil || e.row == invalidRow {
		return nil, fmt.Errorf("%w: entity is not bound to a live row", ErrInvalidState)
	}

	return e.session.engine.ReadRow(e.row.table, e.row.key)
}

// Decode unmarshals the record's JSON payload into the given value.
func (e *Entity) Decode(into any) error {
	payload, err := e.Payload()
	if err != nil {
		return err
	}

	return jsoniter.ConfigFastest.Unmarshal(payload, into)
}

// setPendingQuery registers the future produced by dispatch. The worker may
// already have resolved it before registration finished; in that case the
// completion runs synchronously inline here, on the caller's goroutine,
// instead of arming a wait that nobody would resolve again. The mailbox note
// the worker posted becomes a no-op through the exactly-once guard.
func (e *Entity) setPendingQuery(pq *pendingQuery) {
	e.pending = pq

	if pq.resolved() {
		e.deliverCompletion()
	}
}

// deliverCompletion consumes the resolved future exactly once, on the owning
// goroutine. A worker execution failure is retained and propagated through
// Load and the OnError callback. A stale handover leaves the entity
// not-completed and retryable at the next delivery point.
func (e *Entity) deliverCompletion() {
	if e.session == nil || !e.session.IsOpen() {
		return
	}
	if e.pending == nil || !e.pending.resolved() {
		return
	}
	if e.completed || e.failure != nil {
		return
	}

	token, err := e.pending.outcome()
	if err != nil {
		e.failure = err
		e.session.logError(logMsgCompletionFailed, err, logAttrQueryID, e.queryID.String())
		e.session.incrementCounter(metricQueryErrors, operationCompletion)
		e.invokeCallbackError(err)

		return
	}

	e.onCompleted(token)
}

// onCompleted imports the handover token through the owning session, binds
// the new row reference, marks the entity completed, and notifies listeners
// exactly once for this transition. An empty result completes the entity with
// the invalid sentinel row: loaded, but not valid.
func (e *Entity) onCompleted(token *HandoverToken) {
	rows, err := e.session.importToken(token)
	if err != nil {
		e.staleErr = err

		return
	}

	if len(rows) == 0 {
		e.row = invalidRow
	} else {
		e.bind(rows[0], token.version)
	}

	e.staleErr = nil
	e.completed = true

	e.session.logOperation(logMsgCompletionDelivered,
		logAttrQueryID, e.queryID.String(),
		logAttrTable, e.typeName,
		logAttrMatchCount, len(rows))
	e.session.incrementCounter(metricCompletionsDelivered, operationCompletion)

	e.invokeCallbackSuccess()
	e.notifyListeners()
}

// completionOutcome reports the retained delivery outcome for Load.
func (e *Entity) completionOutcome() error {
	switch {
	case e.completed:
		return nil
	case e.failure != nil:
		return e.failure
	default:
		return e.staleErr
	}
}

// refreshAndNotify re-evaluates the entity against the refreshed session
// version and notifies listeners when the record was written after the
// pinned version or became detached. Runs on the owning goroutine during
// Session.Refresh.
func (e *Entity) refreshAndNotify() {
	if e.listeners.len() == 0 {
		return
	}
	if e.row == nil || e.row == invalidRow {
		return
	}

	version, live := e.session.engine.RowVersion(e.row.table, e.row.key)
	if !live {
		if !e.sawDetached {
			e.sawDetached = true
			e.notifyListeners()
		}

		return
	}

	if version > e.pinnedVersion {
		e.pinnedVersion = e.session.version
		e.notifyListeners()
	}
}

// notifyListeners invokes each listener registered at the start of the call,
// in registration order, against an immutable snapshot: callbacks may mutate
// the registry without skipping or double-notifying anyone.
func (e *Entity) notifyListeners() {
	for _, listener := range e.listeners.snapshot() {
		listener.OnChange(e)
	}
}

func (e *Entity) invokeCallbackSuccess() {
	if e.callback == nil {
		return
	}

	if e.callback.BeforeDeliver != nil {
		e.callback.BeforeDeliver(e.session)
	}
	if e.callback.OnSuccess != nil {
		e.callback.OnSuccess(e)
	}
}

func (e *Entity) invokeCallbackError(err error) {
	if e.callback == nil {
		return
	}

	if e.callback.BeforeDeliver != nil {
		e.callback.BeforeDeliver(e.session)
	}
	if e.callback.OnError != nil {
		e.callback.OnError(err)
	}
}
