package livestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a goroutine-confined view of a shared storage engine. The
// session, and every Entity or Results handle it produces, must only be used
// from the goroutine that opened it; none of their state is locked. The only
// structures crossing goroutines are the engine itself (internally
// synchronized), the single-resolution futures, the immutable handover
// tokens, and the completion mailbox.
//
// Reads observe the engine head. The pinned version, advanced by Refresh,
// governs handover import compatibility and change-set diffing: a token
// computed at a different version than the session's fails to import with
// ErrStaleHandover.
//
// Completions of asynchronous queries are delivered on the owning goroutine
// only: during Refresh, or during Load on the dispatched handle, or inline
// within the dispatch call when the worker won the race and resolved the
// future before registration finished.
type Session struct {
	id         uuid.UUID
	engine     StorageEngine
	dispatcher QueryDispatcher
	version    VersionUint
	closed     bool

	mailbox completionMailbox

	watchedEntities []*Entity
	watchedResults  []*Results

	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// OpenSession opens a goroutine-confined session onto engine, pinned to the
// engine version current at the time of the call.
func OpenSession(engine StorageEngine, options ...Option) (*Session, error) {
	if engine == nil {
		return nil, ErrNilStorageEngine
	}

	s := &Session{
		id:      uuid.New(),
		engine:  engine,
		version: engine.CurrentVersion(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	if s.dispatcher == nil {
		s.dispatcher = NewBoundedDispatcher(defaultDispatcherSlots)
	}

	s.logOperation(logMsgSessionOpened,
		logAttrSessionID, s.id.String(),
		logAttrVersion, s.version)

	return s, nil
}

// ID returns the identifier assigned to this session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Version returns the pinned storage version.
func (s *Session) Version() VersionUint {
	return s.version
}

// IsOpen reports whether the session is usable.
func (s *Session) IsOpen() bool {
	return !s.closed
}

// Close marks the session closed. Every handle bound to it becomes invalid
// and every subsequent operation fails with ErrInvalidState. Undelivered
// completions are abandoned, never imported. Close is idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}

	s.closed = true
	s.watchedEntities = nil
	s.watchedResults = nil

	s.logOperation(logMsgSessionClosed, logAttrSessionID, s.id.String())
}

// checkOpen guards every session-bound operation.
func (s *Session) checkOpen() error {
	if s == nil {
		return fmt.Errorf("%w: no session", ErrInvalidState)
	}
	if s.closed {
		return fmt.Errorf("%w: session closed", ErrInvalidState)
	}

	return nil
}

// Find executes spec synchronously on the owning goroutine and returns the
// first matching record as an attached entity. Returns ErrRowNotFound when
// nothing matches.
func (s *Session) Find(spec QuerySpec) (*Entity, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	result, err := s.executeOnOwner(spec.Limited(1))
	if err != nil {
		return nil, err
	}

	if len(result.Keys) == 0 {
		return nil, ErrRowNotFound
	}

	e := newEntity(s)
	e.setType(spec.Table())
	e.bind(newRowRef(spec.Table(), result.Keys[0]), result.Version)

	return e, nil
}

// FindAll executes spec synchronously on the owning goroutine and returns the
// matching records as a materialized live collection.
func (s *Session) FindAll(spec QuerySpec) (*Results, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	result, err := s.executeOnOwner(spec)
	if err != nil {
		return nil, err
	}

	res := newResults(s, spec)
	res.materialize(result)

	return res, nil
}

// FindFirstAsync dispatches spec to the worker pool and returns immediately
// with an unbound entity handle; IsLoaded reports false until the completion
// is delivered. A query matching nothing completes the handle with the
// invalid sentinel row: loaded, but not valid.
func (s *Session) FindFirstAsync(spec QuerySpec, opts ...DispatchOption) (*Entity, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	cfg := applyDispatchOptions(opts)

	e := newEntity(s)
	e.setType(spec.Table())
	e.callback = cfg.callback

	pq, queryID := s.submitQuery(spec.Limited(1), func() { e.deliverCompletion() })
	e.queryID = queryID
	e.setPendingQuery(pq)

	s.logOperation(logMsgQueryDispatched,
		logAttrQueryID, queryID.String(),
		logAttrTable, spec.Table())
	s.incrementCounter(metricQueriesDispatched, operationFindFirst)

	return e, nil
}

// FindAllAsync dispatches spec to the worker pool and returns immediately
// with an unloaded collection handle.
func (s *Session) FindAllAsync(spec QuerySpec, opts ...DispatchOption) (*Results, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	cfg := applyDispatchOptions(opts)

	res := newResults(s, spec)
	res.callback = cfg.callback

	pq, queryID := s.submitQuery(spec, func() { res.deliverCompletion() })
	res.queryID = queryID
	res.setPendingQuery(pq)

	s.logOperation(logMsgQueryDispatched,
		logAttrQueryID, queryID.String(),
		logAttrTable, spec.Table())
	s.incrementCounter(metricQueriesDispatched, operationFindAll)

	return res, nil
}

// Refresh advances the pinned version to the engine head, delivers pending
// completions, and re-evaluates live handles that carry listeners: watched
// collections re-run their query and are notified with an Update-classified
// change set when the positional diff is non-empty; watched entities are
// notified when their record was written or detached since the previous
// version. Refresh is the owner-goroutine delivery point; it must not be
// called from a listener callback.
func (s *Session) Refresh() error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	start := time.Now()
	previous := s.version
	s.version = s.engine.CurrentVersion()

	for _, deliver := range s.mailbox.drain() {
		deliver()
	}

	for _, res := range slices.Clone(s.watchedResults) {
		res.refreshAndNotify()
	}
	for _, e := range slices.Clone(s.watchedEntities) {
		e.refreshAndNotify()
	}

	s.logOperation(logMsgSessionRefreshed,
		logAttrFromVersion, previous,
		logAttrToVersion, s.version,
		logAttrDurationMS, durationToMilliseconds(time.Since(start)))
	s.recordDuration(metricRefreshDuration, time.Since(start), operationRefresh, statusSuccess)

	return nil
}

// submitQuery hands the query to the dispatcher. The worker resolves the
// future exactly once and then posts the delivery thunk to the mailbox; the
// thunk no-ops when the completion was already delivered inline.
func (s *Session) submitQuery(spec QuerySpec, deliver func()) (*pendingQuery, uuid.UUID) {
	pq := newPendingQuery()
	queryID := uuid.New()

	s.dispatcher.Submit(func() {
		ctx, span := s.startTraceSpan(context.Background(), spanNameExecute, map[string]string{
			spanAttrQueryID: queryID.String(),
			spanAttrTable:   spec.Table(),
		})

		start := time.Now()
		result, execErr := s.engine.ExecuteQuery(ctx, spec)
		duration := time.Since(start)

		if execErr != nil {
			s.logErrorContext(ctx, logMsgWorkerQueryFailed, execErr, logAttrQueryID, queryID.String())
			s.recordDurationContext(ctx, metricQueryDuration, duration, operationExecute, statusError)
			s.incrementCounterContext(ctx, metricQueryErrors, operationExecute)
			s.finishTraceSpan(span, statusError, map[string]string{spanAttrErrorType: errorTypeExecution})

			pq.resolve(nil, errors.Join(ErrQueryFailed, execErr))
		} else {
			s.logDebugContext(ctx, logMsgWorkerQueryCompleted,
				logAttrQueryID, queryID.String(),
				logAttrMatchCount, len(result.Keys),
				logAttrVersion, result.Version,
				logAttrDurationMS, durationToMilliseconds(duration))
			s.recordDurationContext(ctx, metricQueryDuration, duration, operationExecute, statusSuccess)
			s.finishTraceSpan(span, statusSuccess, map[string]string{
				spanAttrMatchCount: fmt.Sprintf("%d", len(result.Keys)),
				spanAttrVersion:    fmt.Sprintf("%d", result.Version),
			})

			pq.resolve(newHandoverToken(spec, result, queryID), nil)
		}

		s.mailbox.post(deliver)
	})

	return pq, queryID
}

// executeOnOwner runs a query synchronously for the owner-goroutine paths.
func (s *Session) executeOnOwner(spec QuerySpec) (QueryResult, error) {
	start := time.Now()
	result, err := s.engine.ExecuteQuery(context.Background(), spec)
	duration := time.Since(start)

	if err != nil {
		s.logError(logMsgQueryFailed, err, logAttrTable, spec.Table())
		s.recordDuration(metricQueryDuration, duration, operationFind, statusError)
		s.incrementCounter(metricQueryErrors, operationFind)

		return QueryResult{}, errors.Join(ErrQueryFailed, err)
	}

	s.recordDuration(metricQueryDuration, duration, operationFind, statusSuccess)

	return result, nil
}

// importToken re-materializes a handover token as goroutine-confined row
// references. The token is consumed exactly once; a version mismatch releases
// it again so that a Refresh to the token's version can still import it.
func (s *Session) importToken(token *HandoverToken) ([]*RowRef, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if err := token.consume(); err != nil {
		return nil, err
	}

	if token.version != s.version {
		token.release()
		s.logWarn(logMsgStaleHandover,
			logAttrQueryID, token.queryID.String(),
			logAttrTokenVersion, token.version,
			logAttrVersion, s.version)
		s.incrementCounter(metricStaleHandovers, operationImport)

		return nil, fmt.Errorf("%w: token at version %d, session at version %d",
			ErrStaleHandover, token.version, s.version)
	}

	rows := make([]*RowRef, 0, len(token.keys))
	for _, key := range token.keys {
		rows = append(rows, newRowRef(token.spec.Table(), key))
	}

	return rows, nil
}

// removeRow performs the compaction-based removal for an attached entity.
func (s *Session) removeRow(row *RowRef) error {
	version, err := s.engine.RemoveRow(row.table, row.key)
	if err != nil {
		s.logError(logMsgRemoveFailed, err, logAttrTable, row.table, logAttrKey, row.key)

		return err
	}

	s.logOperation(logMsgRowRemoved,
		logAttrTable, row.table,
		logAttrKey, row.key,
		logAttrVersion, version)
	s.incrementCounter(metricRowsRemoved, operationRemove)

	return nil
}

func (s *Session) watchEntity(e *Entity) {
	if !slices.Contains(s.watchedEntities, e) {
		s.watchedEntities = append(s.watchedEntities, e)
	}
}

func (s *Session) unwatchEntity(e *Entity) {
	s.watchedEntities = slices.DeleteFunc(s.watchedEntities, func(w *Entity) bool { return w == e })
}

func (s *Session) watchResults(res *Results) {
	if !slices.Contains(s.watchedResults, res) {
		s.watchedResults = append(s.watchedResults, res)
	}
}

func (s *Session) unwatchResults(res *Results) {
	s.watchedResults = slices.DeleteFunc(s.watchedResults, func(w *Results) bool { return w == res })
}

// completionMailbox carries completion thunks from worker goroutines to the
// owner. It is the one shared mutable structure besides the engine, guarded
// by its own mutex; the thunks themselves only run on the owner during drain.
type completionMailbox struct {
	mu    sync.Mutex
	queue []func()
}

func (m *completionMailbox) post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, fn)
}

func (m *completionMailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	drained := m.queue
	m.queue = nil

	return drained
}
