package memoryengine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/fadendb/faden-go/livestore"
)

type storedRow struct {
	key        livestore.RowKeyUint
	payload    []byte
	addedAt    livestore.VersionUint
	modifiedAt livestore.VersionUint
}

// table keeps the records of one table in a dense slot array plus a
// key-to-slot directory. Slot order is query order.
type table struct {
	slots []*storedRow
	byKey map[livestore.RowKeyUint]int
}

func newTable() *table {
	return &table{byKey: make(map[livestore.RowKeyUint]int)}
}

// Engine is the in-memory storage engine. All exported methods are safe for
// concurrent use; queries capture the version and the matching keys
// atomically under the same lock.
type Engine struct {
	mu      sync.RWMutex
	tables  map[string]*table
	version livestore.VersionUint
	nextKey livestore.RowKeyUint
	closed  bool
	logger  livestore.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithLogger sets the logger receiving debug-level write/remove information.
func WithLogger(logger livestore.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// New creates an empty in-memory engine at version 0.
func New(options ...Option) (*Engine, error) {
	e := &Engine{tables: make(map[string]*table)}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Close marks the engine closed; subsequent operations fail with
// livestore.ErrEngineClosed. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true

	return nil
}

// InsertRow commits a new record and returns its stable key and the version
// of the commit. The payload must be valid JSON.
func (e *Engine) InsertRow(tableName string, payload []byte) (livestore.RowKeyUint, livestore.VersionUint, error) {
	if tableName == "" {
		return 0, 0, livestore.ErrEmptyTableName
	}
	if !jsoniter.ConfigFastest.Valid(payload) {
		return 0, 0, livestore.ErrInvalidPayload
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, 0, livestore.ErrEngineClosed
	}

	t, ok := e.tables[tableName]
	if !ok {
		t = newTable()
		e.tables[tableName] = t
	}

	e.version++
	e.nextKey++

	row := &storedRow{
		key:        e.nextKey,
		payload:    slices.Clone(payload),
		addedAt:    e.version,
		modifiedAt: e.version,
	}
	t.byKey[row.key] = len(t.slots)
	t.slots = append(t.slots, row)

	e.logDebug("row inserted", "table", tableName, "key", row.key, "version", e.version)

	return row.key, e.version, nil
}

// UpdateRow commits a new payload for an existing record and returns the
// version of the commit.
func (e *Engine) UpdateRow(tableName string, key livestore.RowKeyUint, payload []byte) (livestore.VersionUint, error) {
	if !jsoniter.ConfigFastest.Valid(payload) {
		return 0, livestore.ErrInvalidPayload
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, livestore.ErrEngineClosed
	}

	row, ok := e.lookup(tableName, key)
	if !ok {
		return 0, fmt.Errorf("%w: table %q key %d", livestore.ErrRowNotFound, tableName, key)
	}

	e.version++
	row.payload = slices.Clone(payload)
	row.modifiedAt = e.version

	e.logDebug("row updated", "table", tableName, "key", key, "version", e.version)

	return e.version, nil
}

// RemoveRow erases a record using compaction: the record in the last slot of
// the table moves into the freed slot. Returns the version of the commit.
func (e *Engine) RemoveRow(tableName string, key livestore.RowKeyUint) (livestore.VersionUint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, livestore.ErrEngineClosed
	}

	t, ok := e.tables[tableName]
	if !ok {
		return 0, fmt.Errorf("%w: table %q key %d", livestore.ErrRowNotFound, tableName, key)
	}
	slot, ok := t.byKey[key]
	if !ok {
		return 0, fmt.Errorf("%w: table %q key %d", livestore.ErrRowNotFound, tableName, key)
	}

	last := len(t.slots) - 1
	if slot != last {
		moved := t.slots[last]
		t.slots[slot] = moved
		t.byKey[moved.key] = slot
	}
	t.slots = t.slots[:last]
	delete(t.byKey, key)

	e.version++

	e.logDebug("row removed", "table", tableName, "key", key, "version", e.version)

	return e.version, nil
}

// CurrentVersion returns the version of the most recent commit.
func (e *Engine) CurrentVersion() livestore.VersionUint {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.version
}

// RowAttached reports whether the record identified by key is live in table.
func (e *Engine) RowAttached(tableName string, key livestore.RowKeyUint) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false
	}

	_, ok := e.lookup(tableName, key)

	return ok
}

// RowVersion returns the version of the commit that last wrote the record and
// whether the record is live.
func (e *Engine) RowVersion(tableName string, key livestore.RowKeyUint) (livestore.VersionUint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0, false
	}

	row, ok := e.lookup(tableName, key)
	if !ok {
		return 0, false
	}

	return row.modifiedAt, true
}

// ReadRow returns a copy of the JSON payload of a live record.
func (e *Engine) ReadRow(tableName string, key livestore.RowKeyUint) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, livestore.ErrEngineClosed
	}

	row, ok := e.lookup(tableName, key)
	if !ok {
		return nil, fmt.Errorf("%w: table %q key %d", livestore.ErrRowNotFound, tableName, key)
	}

	return slices.Clone(row.payload), nil
}

// ExecuteQuery evaluates spec at the engine head: a slot-order scan matching
// the spec's field predicate against each payload. The returned keys and
// version are captured atomically.
func (e *Engine) ExecuteQuery(ctx context.Context, spec livestore.QuerySpec) (livestore.QueryResult, error) {
	if err := spec.Validate(); err != nil {
		return livestore.QueryResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return livestore.QueryResult{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return livestore.QueryResult{}, livestore.ErrEngineClosed
	}

	result := livestore.QueryResult{Version: e.version}

	t, ok := e.tables[spec.Table()]
	if !ok {
		return result, nil
	}

	for _, row := range t.slots {
		if !spec.Matches(row.payload) {
			continue
		}

		result.Keys = append(result.Keys, row.key)
		if spec.Limit() > 0 && len(result.Keys) == spec.Limit() {
			break
		}
	}

	return result, nil
}

// RowCount returns the number of live records in table.
func (e *Engine) RowCount(tableName string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.tables[tableName]
	if !ok {
		return 0
	}

	return len(t.slots)
}

// lookup resolves a key to its live record; callers hold the lock.
func (e *Engine) lookup(tableName string, key livestore.RowKeyUint) (*storedRow, bool) {
	t, ok := e.tables[tableName]
	if !ok {
		return nil, false
	}

	slot, ok := t.byKey[key]
	if !ok {
		return nil, false
	}

	return t.slots[slot], true
}

func (e *Engine) logDebug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

// Ensure Engine implements livestore.StorageEngine.
var _ livestore.StorageEngine = (*Engine)(nil)
