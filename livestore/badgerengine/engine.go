package badgerengine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"

	"github.com/fadendb/faden-go/livestore"
)

var ErrNilDatabase = errors.New("nil badger database supplied")

const (
	prefixRow   = "row:"
	prefixSlots = "slots:"

	keyVersion = "meta:version"
	keyNextKey = "meta:next_key"
)

// rowEnvelope is the stored shape of one record: the payload plus the
// versions of the commits that created and last wrote it.
type rowEnvelope struct {
	AddedAt    livestore.VersionUint `json:"added_at"`
	ModifiedAt livestore.VersionUint `json:"modified_at"`
	Payload    jsoniter.RawMessage   `json:"payload"`
}

// Engine is the badger-backed storage engine. Writes are serialized so every
// commit gets its own version; reads run concurrently on badger snapshots.
type Engine struct {
	mu     sync.RWMutex
	db     *badger.DB
	ownsDB bool
	closed bool
	logger livestore.Logger
	gcStop chan struct{}
	gcDone chan struct{}
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

// NewEngine opens a database per cfg and wraps it in an engine. The engine
// owns the database and closes it on Close. When cfg enables garbage
// collection, a background collector runs until Close.
func NewEngine(cfg Config, options ...Option) (*Engine, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{db: db, ownsDB: true}

	for _, option := range options {
		if err := option(e); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		e.gcStop = make(chan struct{})
		e.gcDone = make(chan struct{})
		go e.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return e, nil
}

// NewEngineFromDB wraps an already opened database. The caller keeps
// ownership; Close does not close the database.
func NewEngineFromDB(db *badger.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	e := &Engine{db: db}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// NewInMemoryEngine opens an in-memory engine, the usual choice for tests.
func NewInMemoryEngine(options ...Option) (*Engine, error) {
	return NewEngine(InMemoryConfig(), options...)
}

// Close stops the garbage collector and, when the engine owns the database,
// closes it. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.gcStop != nil {
		close(e.gcStop)
		<-e.gcDone
	}

	if e.ownsDB {
		return e.db.Close()
	}

	return nil
}

// InsertRow commits a new record and returns its stable key and the version
// of the commit. The payload must be valid JSON.
func (e *Engine) InsertRow(table string, payload []byte) (livestore.RowKeyUint, livestore.VersionUint, error) {
	if table == "" {
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

	var key livestore.RowKeyUint
	var version livestore.VersionUint

	err := e.db.Update(func(txn *badger.Txn) error {
		var err error
		if version, err = getUint64(txn, keyVersion); err != nil {
			return err
		}
		if key, err = getUint64(txn, keyNextKey); err != nil {
			return err
		}
		version++
		key++

		if err = writeEnvelope(txn, table, key, rowEnvelope{
			AddedAt:    version,
			ModifiedAt: version,
			Payload:    jsoniter.RawMessage(payload),
		}); err != nil {
			return err
		}

		keys, err := readSlotDirectory(txn, table)
		if err != nil {
			return err
		}
		if err = txn.Set(slotsKey(table), encodeKeys(append(keys, key))); err != nil {
			return err
		}

		if err = putUint64(txn, keyVersion, version); err != nil {
			return err
		}

		return putUint64(txn, keyNextKey, key)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("insert row: %w", err)
	}

	e.logDebug("row inserted", "table", table, "key", key, "version", version)

	return key, version, nil
}

// UpdateRow commits a new payload for an existing record and returns the
// version of the commit.
func (e *Engine) UpdateRow(table string, key livestore.RowKeyUint, payload []byte) (livestore.VersionUint, error) {
	if !jsoniter.ConfigFastest.Valid(payload) {
		return 0, livestore.ErrInvalidPayload
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, livestore.ErrEngineClosed
	}

	var version livestore.VersionUint

	err := e.db.Update(func(txn *badger.Txn) error {
		envelope, err := readEnvelope(txn, table, key)
		if err != nil {
			return err
		}

		if version, err = getUint64(txn, keyVersion); err != nil {
			return err
		}
		version++

		envelope.ModifiedAt = version
		envelope.Payload = jsoniter.RawMessage(payload)

		if err = writeEnvelope(txn, table, key, envelope); err != nil {
			return err
		}

		return putUint64(txn, keyVersion, version)
	})
	if err != nil {
		return 0, err
	}

	e.logDebug("row updated", "table", table, "key", key, "version", version)

	return version, nil
}

// RemoveRow erases a record using compaction: the key in the last slot of the
// table's directory moves into the freed slot. Returns the version of the
// commit.
func (e *Engine) RemoveRow(table string, key livestore.RowKeyUint) (livestore.VersionUint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, livestore.ErrEngineClosed
	}

	var version livestore.VersionUint

	err := e.db.Update(func(txn *badger.Txn) error {
		keys, err := readSlotDirectory(txn, table)
		if err != nil {
			return err
		}

		slot := -1
		for i, candidate := range keys {
			if candidate == key {
				slot = i
				break
			}
		}
		if slot < 0 {
			return fmt.Errorf("%w: table %q key %d", livestore.ErrRowNotFound, table, key)
		}

		last := len(keys) - 1
		keys[slot] = keys[last]
		keys = keys[:last]

		if err = txn.Delete(rowKey(table, key)); err != nil {
			return err
		}
		if err = txn.Set(slotsKey(table), encodeKeys(keys)); err != nil {
			return err
		}

		if version, err = getUint64(txn, keyVersion); err != nil {
			return err
		}
		version++

		return putUint64(txn, keyVersion, version)
	})
	if err != nil {
		return 0, err
	}

	e.logDebug("row removed", "table", table, "key", key, "version", version)

	return version, nil
}

// CurrentVersion returns the version of the most recent commit.
func (e *Engine) CurrentVersion() livestore.VersionUint {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0
	}

	var version livestore.VersionUint
	_ = e.db.View(func(txn *badger.Txn) error {
		v, err := getUint64(txn, keyVersion)
		if err != nil {
			return err
		}
		version = v
		return nil
	})

	return version
}

// RowAttached reports whether the record identified by key is live in table.
func (e *Engine) RowAttached(table string, key livestore.RowKeyUint) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false
	}

	attached := false
	_ = e.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(rowKey(table, key)); err == nil {
			attached = true
		}
		return nil
	})

	return attached
}

// RowVersion returns the version of the commit that last wrote the record and
// whether the record is live.
func (e *Engine) RowVersion(table string, key livestore.RowKeyUint) (livestore.VersionUint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0, false
	}

	var version livestore.VersionUint
	live := false
	_ = e.db.View(func(txn *badger.Txn) error {
		envelope, err := readEnvelope(txn, table, key)
		if err != nil {
			return nil
		}
		version = envelope.ModifiedAt
		live = true
		return nil
	})

	return version, live
}

// ReadRow returns the JSON payload of a live record.
func (e *Engine) ReadRow(table string, key livestore.RowKeyUint) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, livestore.ErrEngineClosed
	}

	var payload []byte
	err := e.db.View(func(txn *badger.Txn) error {
		envelope, err := readEnvelope(txn, table, key)
		if err != nil {
			return err
		}
		payload = []byte(envelope.Payload)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payload, nil
}

// ExecuteQuery evaluates spec at the engine head: a slot-order scan matching
// the spec's field predicate against each payload. The badger snapshot makes
// the version and key capture atomic.
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

	var result livestore.QueryResult

	err := e.db.View(func(txn *badger.Txn) error {
		version, err := getUint64(txn, keyVersion)
		if err != nil {
			return err
		}
		result.Version = version

		keys, err := readSlotDirectory(txn, spec.Table())
		if err != nil {
			return err
		}

		for _, key := range keys {
			envelope, err := readEnvelope(txn, spec.Table(), key)
			if err != nil {
				return err
			}
			if !spec.Matches(envelope.Payload) {
				continue
			}

			result.Keys = append(result.Keys, key)
			if spec.Limit() > 0 && len(result.Keys) == spec.Limit() {
				break
			}
		}

		return nil
	})
	if err != nil {
		return livestore.QueryResult{}, fmt.Errorf("execute query: %w", err)
	}

	return result, nil
}

// RowCount returns the number of live records in table.
func (e *Engine) RowCount(table string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0
	}

	count := 0
	_ = e.db.View(func(txn *badger.Txn) error {
		keys, err := readSlotDirectory(txn, table)
		if err != nil {
			return err
		}
		count = len(keys)
		return nil
	})

	return count
}

func (e *Engine) runGC(interval time.Duration, ratio float64) {
	defer close(e.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.gcStop:
			return
		case <-ticker.C:
			if err := e.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				e.logDebug("value log gc failed", "error", err.Error())
			}
		}
	}
}

func (e *Engine) logDebug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func rowKey(table string, key livestore.RowKeyUint) []byte {
	buf := make([]byte, 0, len(prefixRow)+len(table)+1+8)
	buf = append(buf, prefixRow...)
	buf = append(buf, table...)
	buf = append(buf, ':')

	return binary.BigEndian.AppendUint64(buf, key)
}

func slotsKey(table string) []byte {
	return []byte(prefixSlots + table)
}

func writeEnvelope(txn *badger.Txn, table string, key livestore.RowKeyUint, envelope rowEnvelope) error {
	encoded, err := jsoniter.ConfigFastest.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal row envelope: %w", err)
	}

	return txn.Set(rowKey(table, key), encoded)
}

func readEnvelope(txn *badger.Txn, table string, key livestore.RowKeyUint) (rowEnvelope, error) {
	item, err := txn.Get(rowKey(table, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rowEnvelope{}, fmt.Errorf("%w: table %q key %d", livestore.ErrRowNotFound, table, key)
	}
	if err != nil {
		return rowEnvelope{}, err
	}

	var envelope rowEnvelope
	err = item.Value(func(val []byte) error {
		return jsoniter.ConfigFastest.Unmarshal(val, &envelope)
	})
	if err != nil {
		return rowEnvelope{}, fmt.Errorf("unmarshal row envelope: %w", err)
	}

	return envelope, nil
}

func readSlotDirectory(txn *badger.Txn, table string) ([]livestore.RowKeyUint, error) {
	item, err := txn.Get(slotsKey(table))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var keys []livestore.RowKeyUint
	err = item.Value(func(val []byte) error {
		keys = decodeKeys(val)
		return nil
	})

	return keys, err
}

func encodeKeys(keys []livestore.RowKeyUint) []byte {
	buf := make([]byte, 0, len(keys)*8)
	for _, key := range keys {
		buf = binary.BigEndian.AppendUint64(buf, key)
	}

	return buf
}

func decodeKeys(data []byte) []livestore.RowKeyUint {
	keys := make([]livestore.RowKeyUint, 0, len(data)/8)
	for i := 0; i+8 <= len(data); i += 8 {
		keys = append(keys, binary.BigEndian.Uint64(data[i:i+8]))
	}

	return keys
}

func putUint64(txn *badger.Txn, key string, value uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)

	return txn.Set([]byte(key), buf[:])
}

func getUint64(txn *badger.Txn, key string) (uint64, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var value uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("counter %q holds %d bytes, want 8", key, len(val))
		}
		value = binary.BigEndian.Uint64(val)
		return nil
	})

	return value, err
}

// Ensure Engine implements livestore.StorageEngine.
var _ livestore.StorageEngine = (*Engine)(nil)
