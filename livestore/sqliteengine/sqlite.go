package sqliteengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect import
	jsoniter "github.com/json-iterator/go"
	"github.com/jmoiron/sqlx"

	"github.com/fadendb/faden-go/livestore"
	"github.com/fadendb/faden-go/livestore/sqliteengine/internal/adapters"
)

const (
	defaultRowsTableName = "rows"
	storeMetaTableName   = "store_meta"

	logMsgBuildQueryFailed   = "failed to build sql query"
	logMsgDBQueryFailed      = "database query execution failed"
	logMsgDBExecFailed       = "database execution failed"
	logMsgCloseRowsFailed    = "failed to close database rows"
	logMsgScanRowFailed      = "failed to scan database row"
	logMsgBeginTxFailed      = "failed to begin transaction"
	logMsgCommitTxFailed     = "failed to commit transaction"
	logMsgQueryCompleted     = "query completed"
	logMsgRowInserted        = "row inserted"
	logMsgRowUpdated         = "row updated"
	logMsgRowRemoved         = "row removed"
	logMsgSQLExecuted        = "executed sql for: "
	logMsgOperation          = "storage engine operation: "
	logAttrError             = "error"
	logAttrQuery             = "query"
	logAttrTable             = "table"
	logAttrKey               = "key"
	logAttrVersion           = "version"
	logAttrMatchCount        = "match_count"
	logAttrDurationMS        = "duration_ms"
	logActionQuery           = "query"
	logActionInsert          = "insert"
	logActionUpdate          = "update"
	logActionRemove          = "remove"
	colTableName             = "table_name"
	colKey                   = "key"
	colSlot                  = "slot"
	colPayload               = "payload"
	colAddedAt               = "added_at"
	colModifiedAt            = "modified_at"
	colName                  = "name"
	colValue                 = "value"
	metaKeyVersion           = "version"
	metaKeyNextKey           = "next_key"
	dialectSQLite3           = "sqlite3"
	jsonPathPrefix           = "$."

	// predicateJSONFieldEquals compares the extracted field against the value
	// by canonical text form, the same form QuerySpec.Matches compares by:
	// json_extract alone would surface booleans as 0/1 and numbers as their
	// SQL storage class, which never equal a text value.
	predicateJSONFieldEquals = "CASE json_type(" + colPayload + ", ?)" +
		" WHEN 'true' THEN 'true' WHEN 'false' THEN 'false'" +
		" ELSE CAST(json_extract(" + colPayload + ", ?) AS TEXT) END = ?"
)

type sqlQueryString = string

var ErrNilDatabaseConnection = errors.New("nil database connection supplied")
var ErrBuildingQueryFailed = errors.New("building sql query failed")
var ErrQueryingRowsFailed = errors.New("querying database rows failed")
var ErrExecutingWriteFailed = errors.New("executing database write failed")
var ErrScanningRowFailed = errors.New("scanning database row failed")
var ErrTransactionFailed = errors.New("database transaction failed")
var ErrInitializingSchemaFailed = errors.New("initializing database schema failed")

// Engine is the SQLite-backed storage engine. It speaks to the database
// through an adapter, so sql.DB and sqlx.DB connections work alike. Records
// of all logical tables share one physical table; a dense slot column keeps
// query order, and a meta table carries the version and key counters.
//
// All writers of a store go through the engine, so the engine lock is what
// makes version capture atomic for readers.
type Engine struct {
	mu            sync.RWMutex
	db            adapters.DBAdapter
	rowsTableName string
	logger        livestore.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithTableName sets the physical table holding the records.
func WithTableName(tableName string) Option {
	return func(es *Engine) error {
		if tableName == "" {
			return livestore.ErrEmptyTableName
		}

		es.rowsTableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the Engine.
//
// Debug level: SQL statements with execution timing (development use)
// Info level: commit versions and match counts (production-safe)
// Warn level: non-critical issues like cleanup failures
// Error level: critical failures that cause operation failures.
func WithLogger(logger livestore.Logger) Option {
	return func(es *Engine) error {
		es.logger = logger
		return nil
	}
}

// NewEngineFromSQLDB creates a new Engine using a sql.DB with optional configuration.
func NewEngineFromSQLDB(db *sql.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	es := &Engine{
		db:            adapters.NewSQLAdapter(db),
		rowsTableName: defaultRowsTableName,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// NewEngineFromSQLX creates a new Engine using a sqlx.DB with optional configuration.
func NewEngineFromSQLX(db *sqlx.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	es := &Engine{
		db:            adapters.NewSQLXAdapter(db),
		rowsTableName: defaultRowsTableName,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// InitSchema creates the record and meta tables when they do not exist yet
// and seeds the version and key counters.
func (es *Engine) InitSchema(ctx context.Context) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	statements := []sqlQueryString{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			%s TEXT NOT NULL,
			%s INTEGER NOT NULL,
			%s INTEGER NOT NULL,
			%s TEXT NOT NULL,
			%s INTEGER NOT NULL,
			%s INTEGER NOT NULL,
			PRIMARY KEY (%s, %s)
		)`, es.rowsTableName,
			colTableName, colKey, colSlot, colPayload, colAddedAt, colModifiedAt,
			colTableName, colKey),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_slot ON %q (%s, %s)`,
			es.rowsTableName, es.rowsTableName, colTableName, colSlot),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			%s TEXT PRIMARY KEY,
			%s INTEGER NOT NULL
		)`, storeMetaTableName, colName, colValue),
		fmt.Sprintf(`INSERT OR IGNORE INTO %q (%s, %s) VALUES ('%s', 0), ('%s', 0)`,
			storeMetaTableName, colName, colValue, metaKeyVersion, metaKeyNextKey),
	}

	for _, statement := range statements {
		if _, err := es.db.Exec(ctx, statement); err != nil {
			return errors.Join(ErrInitializingSchemaFailed, err)
		}
	}

	return nil
}

// InsertRow commits a new record and returns its stable key and the version
// of the commit. The payload must be valid JSON.
func (es *Engine) InsertRow(table string, payload []byte) (livestore.RowKeyUint, livestore.VersionUint, error) {
	if table == "" {
		return 0, 0, livestore.ErrEmptyTableName
	}
	if !jsoniter.ConfigFastest.Valid(payload) {
		return 0, 0, livestore.ErrInvalidPayload
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	ctx := context.Background()

	tx, err := es.beginTx(ctx)
	if err != nil {
		return 0, 0, err
	}

	version, nextKey, err := es.readCounters(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	version++
	nextKey++

	slot, err := es.queryRowCountInTx(ctx, tx, table)
	if err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}

	insertSQL, err := es.buildInsertRowStatement(table, nextKey, slot, payload, version)
	if err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}

	if err = es.execInTx(ctx, tx, insertSQL, logActionInsert); err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}

	if err = es.writeCounter(ctx, tx, metaKeyVersion, version); err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	if err = es.writeCounter(ctx, tx, metaKeyNextKey, nextKey); err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}

	if err = es.commitTx(tx); err != nil {
		return 0, 0, err
	}

	es.logOperation(logMsgRowInserted, logAttrTable, table, logAttrKey, nextKey, logAttrVersion, version)

	return nextKey, version, nil
}

// UpdateRow commits a new payload for an existing record and returns the
// version of the commit.
func (es *Engine) UpdateRow(table string, key livestore.RowKeyUint, payload []byte) (livestore.VersionUint, error) {
	if !jsoniter.ConfigFastest.Valid(payload) {
		return 0, livestore.ErrInvalidPayload
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	ctx := context.Background()

	tx, err := es.beginTx(ctx)
	if err != nil {
		return 0, err
	}

	version, _, err := es.readCounters(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	version++

	updateSQL, err := es.buildUpdateRowStatement(table, key, payload, version)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	affected, err := es.execInTxWithRowsAffected(ctx, tx, updateSQL, logActionUpdate)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if affected == 0 {
		_ = tx.Rollback()
		return 0, fmt.Errorf("%w: table %q key %d", livestore.ErrRowNotFound, table, key)
	}

	if err = es.writeCounter(ctx, tx, metaKeyVersion, version); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if err = es.commitTx(tx); err != nil {
		return 0, err
	}

	es.logOperation(logMsgRowUpdated, logAttrTable, table, logAttrKey, key, logAttrVersion, version)

	return version, nil
}

// RemoveRow erases a record using compaction: the record in the last slot of
// the logical table moves into the freed slot. Returns the version of the
// commit.
func (es *Engine) RemoveRow(table string, key livestore.RowKeyUint) (livestore.VersionUint, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	ctx := context.Background()

	tx, err := es.beginTx(ctx)
	if err != nil {
		return 0, err
	}

	victimSlot, found, err := es.queryRowSlotInTx(ctx, tx, table, key)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if !found {
		_ = tx.Rollback()
		return 0, fmt.Errorf("%w: table %q key %d", livestore.ErrRowNotFound, table, key)
	}

	deleteSQL, err := es.buildDeleteRowStatement(table, key)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err = es.execInTx(ctx, tx, deleteSQL, logActionRemove); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	moveSQL, err := es.buildMoveLastSlotStatement(table, victimSlot)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err = es.execInTx(ctx, tx, moveSQL, logActionRemove); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	version, _, err := es.readCounters(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	version++

	if err = es.writeCounter(ctx, tx, metaKeyVersion, version); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if err = es.commitTx(tx); err != nil {
		return 0, err
	}

	es.logOperation(logMsgRowRemoved, logAttrTable, table, logAttrKey, key, logAttrVersion, version)

	return version, nil
}

// CurrentVersion returns the version of the most recent commit.
func (es *Engine) CurrentVersion() livestore.VersionUint {
	es.mu.RLock()
	defer es.mu.RUnlock()

	version, err := es.queryVersion(context.Background())
	if err != nil {
		return 0
	}

	return version
}

// RowAttached reports whether the record identified by key is live in table.
func (es *Engine) RowAttached(table string, key livestore.RowKeyUint) bool {
	es.mu.RLock()
	defer es.mu.RUnlock()

	_, found, err := es.queryRowColumn(context.Background(), table, key, colKey)
	if err != nil {
		return false
	}

	return found
}

// RowVersion returns the version of the commit that last wrote the record and
// whether the record is live.
func (es *Engine) RowVersion(table string, key livestore.RowKeyUint) (livestore.VersionUint, bool) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	value, found, err := es.queryRowColumn(context.Background(), table, key, colModifiedAt)
	if err != nil || !found {
		return 0, false
	}

	return livestore.VersionUint(value), true
}

// ReadRow returns the JSON payload of a live record.
func (es *Engine) ReadRow(table string, key livestore.RowKeyUint) ([]byte, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	ctx := context.Background()

	selectSQL, _, err := goqu.Dialect(dialectSQLite3).
		From(es.rowsTableName).
		Select(colPayload).
		Where(goqu.Ex{colTableName: table, colKey: int64(key)}).
		ToSQL()
	if err != nil {
		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	rows, err := es.queryRows(ctx, selectSQL)
	if err != nil {
		return nil, err
	}
	defer es.closeRows(rows)

	if !rows.Next() {
		return nil, fmt.Errorf("%w: table %q key %d", livestore.ErrRowNotFound, table, key)
	}

	var payload []byte
	if err = rows.Scan(&payload); err != nil {
		es.logError(logMsgScanRowFailed, logAttrError, err.Error())
		return nil, errors.Join(ErrScanningRowFailed, err)
	}

	return payload, nil
}

// ExecuteQuery evaluates spec at the engine head: a slot-order SELECT with
// the spec's field predicate pushed down as a json_extract comparison. The
// engine lock makes the version and key capture atomic.
func (es *Engine) ExecuteQuery(ctx context.Context, spec livestore.QuerySpec) (livestore.QueryResult, error) {
	if err := spec.Validate(); err != nil {
		return livestore.QueryResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return livestore.QueryResult{}, err
	}

	es.mu.RLock()
	defer es.mu.RUnlock()

	version, err := es.queryVersion(ctx)
	if err != nil {
		return livestore.QueryResult{}, err
	}

	selectSQL, err := es.buildSelectKeysQuery(spec)
	if err != nil {
		return livestore.QueryResult{}, err
	}

	start := time.Now()
	rows, err := es.queryRows(ctx, selectSQL)
	duration := time.Since(start)
	es.logQueryWithDuration(selectSQL, logActionQuery, duration)

	if err != nil {
		return livestore.QueryResult{}, err
	}
	defer es.closeRows(rows)

	result := livestore.QueryResult{Version: version}

	for rows.Next() {
		var key int64
		if err = rows.Scan(&key); err != nil {
			es.logError(logMsgScanRowFailed, logAttrError, err.Error())
			return livestore.QueryResult{}, errors.Join(ErrScanningRowFailed, err)
		}

		result.Keys = append(result.Keys, livestore.RowKeyUint(key))
	}

	es.logOperation(
		logMsgQueryCompleted,
		logAttrTable, spec.Table(),
		logAttrMatchCount, len(result.Keys),
		logAttrDurationMS, durationToMilliseconds(duration))

	return result, nil
}

// RowCount returns the number of live records in table.
func (es *Engine) RowCount(table string) int {
	es.mu.RLock()
	defer es.mu.RUnlock()

	count, err := es.queryRowCount(context.Background(), table)
	if err != nil {
		return 0
	}

	return int(count)
}

func (es *Engine) buildSelectKeysQuery(spec livestore.QuerySpec) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectSQLite3).
		From(es.rowsTableName).
		Select(colKey).
		Where(goqu.Ex{colTableName: spec.Table()}).
		Order(goqu.I(colSlot).Asc())

	if spec.HasFieldMatch() {
		field, value := spec.FieldMatch()
		path := jsonPathPrefix + field
		selectStmt = selectStmt.Where(goqu.L(predicateJSONFieldEquals, path, path, value))
	}

	if spec.Limit() > 0 {
		selectStmt = selectStmt.Limit(uint(spec.Limit()))
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *Engine) buildInsertRowStatement(
	table string,
	key livestore.RowKeyUint,
	slot int64,
	payload []byte,
	version livestore.VersionUint,
) (sqlQueryString, error) {

	insertStmt := goqu.Dialect(dialectSQLite3).
		Insert(es.rowsTableName).
		Cols(colTableName, colKey, colSlot, colPayload, colAddedAt, colModifiedAt).
		Vals(goqu.Vals{table, int64(key), slot, string(payload), int64(version), int64(version)})

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *Engine) buildUpdateRowStatement(
	table string,
	key livestore.RowKeyUint,
	payload []byte,
	version livestore.VersionUint,
) (sqlQueryString, error) {

	updateStmt := goqu.Dialect(dialectSQLite3).
		Update(es.rowsTableName).
		Set(goqu.Record{colPayload: string(payload), colModifiedAt: int64(version)}).
		Where(goqu.Ex{colTableName: table, colKey: int64(key)})

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *Engine) buildDeleteRowStatement(table string, key livestore.RowKeyUint) (sqlQueryString, error) {
	deleteStmt := goqu.Dialect(dialectSQLite3).
		Delete(es.rowsTableName).
		Where(goqu.Ex{colTableName: table, colKey: int64(key)})

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildMoveLastSlotStatement moves the record in the highest slot of the
// logical table into the freed slot. The slot guard makes the statement a
// no-op when the freed slot was already the highest.
func (es *Engine) buildMoveLastSlotStatement(table string, victimSlot int64) (sqlQueryString, error) {
	builder := goqu.Dialect(dialectSQLite3)

	maxSlotStmt := builder.
		From(es.rowsTableName).
		Select(goqu.MAX(colSlot)).
		Where(goqu.Ex{colTableName: table})

	updateStmt := builder.
		Update(es.rowsTableName).
		Set(goqu.Record{colSlot: victimSlot}).
		Where(
			goqu.C(colTableName).Eq(table),
			goqu.C(colSlot).Eq(maxSlotStmt),
			goqu.C(colSlot).Gt(victimSlot),
		)

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *Engine) beginTx(ctx context.Context) (adapters.DBTx, error) {
	tx, err := es.db.Begin(ctx)
	if err != nil {
		es.logError(logMsgBeginTxFailed, logAttrError, err.Error())
		return nil, errors.Join(ErrTransactionFailed, err)
	}

	return tx, nil
}

func (es *Engine) commitTx(tx adapters.DBTx) error {
	if err := tx.Commit(); err != nil {
		es.logError(logMsgCommitTxFailed, logAttrError, err.Error())
		return errors.Join(ErrTransactionFailed, err)
	}

	return nil
}

// readCounters reads the version and key counters inside a transaction.
func (es *Engine) readCounters(ctx context.Context, tx adapters.DBTx) (
	livestore.VersionUint,
	livestore.RowKeyUint,
	error,
) {

	selectSQL, _, toSQLErr := goqu.Dialect(dialectSQLite3).
		From(storeMetaTableName).
		Select(colName, colValue).
		ToSQL()
	if toSQLErr != nil {
		return 0, 0, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := tx.Query(ctx, selectSQL)
	if err != nil {
		es.logError(logMsgDBQueryFailed, logAttrError, err.Error(), logAttrQuery, selectSQL)
		return 0, 0, errors.Join(ErrQueryingRowsFailed, err)
	}
	defer es.closeRows(rows)

	var version livestore.VersionUint
	var nextKey livestore.RowKeyUint

	for rows.Next() {
		var name string
		var value int64
		if err = rows.Scan(&name, &value); err != nil {
			es.logError(logMsgScanRowFailed, logAttrError, err.Error())
			return 0, 0, errors.Join(ErrScanningRowFailed, err)
		}

		switch name {
		case metaKeyVersion:
			version = livestore.VersionUint(value)
		case metaKeyNextKey:
			nextKey = livestore.RowKeyUint(value)
		}
	}

	return version, nextKey, nil
}

func (es *Engine) writeCounter(ctx context.Context, tx adapters.DBTx, name string, value uint64) error {
	updateSQL, _, toSQLErr := goqu.Dialect(dialectSQLite3).
		Update(storeMetaTableName).
		Set(goqu.Record{colValue: int64(value)}).
		Where(goqu.Ex{colName: name}).
		ToSQL()
	if toSQLErr != nil {
		return errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	_, err := es.execInTxWithRowsAffected(ctx, tx, updateSQL, logActionUpdate)

	return err
}

func (es *Engine) execInTx(ctx context.Context, tx adapters.DBTx, sqlQuery sqlQueryString, action string) error {
	_, err := es.execInTxWithRowsAffected(ctx, tx, sqlQuery, action)

	return err
}

func (es *Engine) execInTxWithRowsAffected(
	ctx context.Context,
	tx adapters.DBTx,
	sqlQuery sqlQueryString,
	action string,
) (int64, error) {

	start := time.Now()
	result, execErr := tx.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(sqlQuery, action, duration)

	if execErr != nil {
		es.logError(logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		return 0, errors.Join(ErrExecutingWriteFailed, execErr)
	}

	affected, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return 0, errors.Join(ErrExecutingWriteFailed, affectedErr)
	}

	return affected, nil
}

func (es *Engine) queryVersion(ctx context.Context) (livestore.VersionUint, error) {
	selectSQL, _, toSQLErr := goqu.Dialect(dialectSQLite3).
		From(storeMetaTableName).
		Select(colValue).
		Where(goqu.Ex{colName: metaKeyVersion}).
		ToSQL()
	if toSQLErr != nil {
		return 0, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := es.queryRows(ctx, selectSQL)
	if err != nil {
		return 0, err
	}
	defer es.closeRows(rows)

	if !rows.Next() {
		return 0, nil
	}

	var value int64
	if err = rows.Scan(&value); err != nil {
		es.logError(logMsgScanRowFailed, logAttrError, err.Error())
		return 0, errors.Join(ErrScanningRowFailed, err)
	}

	return livestore.VersionUint(value), nil
}

// queryRowColumn reads one integer column of a record, reporting whether the
// record exists.
func (es *Engine) queryRowColumn(ctx context.Context, table string, key livestore.RowKeyUint, column string) (
	int64,
	bool,
	error,
) {

	selectSQL, _, toSQLErr := goqu.Dialect(dialectSQLite3).
		From(es.rowsTableName).
		Select(column).
		Where(goqu.Ex{colTableName: table, colKey: int64(key)}).
		ToSQL()
	if toSQLErr != nil {
		return 0, false, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := es.queryRows(ctx, selectSQL)
	if err != nil {
		return 0, false, err
	}
	defer es.closeRows(rows)

	if !rows.Next() {
		return 0, false, nil
	}

	var value int64
	if err = rows.Scan(&value); err != nil {
		es.logError(logMsgScanRowFailed, logAttrError, err.Error())
		return 0, false, errors.Join(ErrScanningRowFailed, err)
	}

	return value, true, nil
}

func (es *Engine) queryRowCount(ctx context.Context, table string) (int64, error) {
	selectSQL, _, toSQLErr := goqu.Dialect(dialectSQLite3).
		From(es.rowsTableName).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{colTableName: table}).
		ToSQL()
	if toSQLErr != nil {
		return 0, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := es.queryRows(ctx, selectSQL)
	if err != nil {
		return 0, err
	}
	defer es.closeRows(rows)

	if !rows.Next() {
		return 0, nil
	}

	var count int64
	if err = rows.Scan(&count); err != nil {
		es.logError(logMsgScanRowFailed, logAttrError, err.Error())
		return 0, errors.Join(ErrScanningRowFailed, err)
	}

	return count, nil
}

// queryRowCountInTx counts the records of a logical table inside a
// transaction; slots are dense, so the count is the next free slot.
func (es *Engine) queryRowCountInTx(ctx context.Context, tx adapters.DBTx, table string) (int64, error) {
	selectSQL, _, toSQLErr := goqu.Dialect(dialectSQLite3).
		From(es.rowsTableName).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{colTableName: table}).
		ToSQL()
	if toSQLErr != nil {
		return 0, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := tx.Query(ctx, selectSQL)
	if err != nil {
		es.logError(logMsgDBQueryFailed, logAttrError, err.Error(), logAttrQuery, selectSQL)
		return 0, errors.Join(ErrQueryingRowsFailed, err)
	}
	defer es.closeRows(rows)

	if !rows.Next() {
		return 0, nil
	}

	var count int64
	if err = rows.Scan(&count); err != nil {
		es.logError(logMsgScanRowFailed, logAttrError, err.Error())
		return 0, errors.Join(ErrScanningRowFailed, err)
	}

	return count, nil
}

func (es *Engine) queryRowSlotInTx(ctx context.Context, tx adapters.DBTx, table string, key livestore.RowKeyUint) (
	int64,
	bool,
	error,
) {

	selectSQL, _, toSQLErr := goqu.Dialect(dialectSQLite3).
		From(es.rowsTableName).
		Select(colSlot).
		Where(goqu.Ex{colTableName: table, colKey: int64(key)}).
		ToSQL()
	if toSQLErr != nil {
		return 0, false, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rows, err := tx.Query(ctx, selectSQL)
	if err != nil {
		es.logError(logMsgDBQueryFailed, logAttrError, err.Error(), logAttrQuery, selectSQL)
		return 0, false, errors.Join(ErrQueryingRowsFailed, err)
	}
	defer es.closeRows(rows)

	if !rows.Next() {
		return 0, false, nil
	}

	var slot int64
	if err = rows.Scan(&slot); err != nil {
		es.logError(logMsgScanRowFailed, logAttrError, err.Error())
		return 0, false, errors.Join(ErrScanningRowFailed, err)
	}

	return slot, true, nil
}

func (es *Engine) queryRows(ctx context.Context, sqlQuery sqlQueryString) (adapters.DBRows, error) {
	rows, err := es.db.Query(ctx, sqlQuery)
	if err != nil {
		es.logError(logMsgDBQueryFailed, logAttrError, err.Error(), logAttrQuery, sqlQuery)
		return nil, errors.Join(ErrQueryingRowsFailed, err)
	}

	return rows, nil
}

// closeRows safely closes database rows and logs any errors.
func (es *Engine) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if es.logger != nil {
			es.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// logQueryWithDuration logs SQL statements with execution time at debug level if the logger is configured.
func (es *Engine) logQueryWithDuration(sqlQuery sqlQueryString, action string, duration time.Duration) {
	if es.logger != nil {
		es.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (es *Engine) logOperation(action string, args ...any) {
	if es.logger != nil {
		es.logger.Info(logMsgOperation+action, args...)
	}
}

func (es *Engine) logError(msg string, args ...any) {
	if es.logger != nil {
		es.logger.Error(msg, args...)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// Ensure Engine implements livestore.StorageEngine.
var _ livestore.StorageEngine = (*Engine)(nil)
