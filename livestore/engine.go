package livestore

import (
	"context"
)

// StorageEngine is the contract the store needs from a storage backend.
// Engines are safe for concurrent use by multiple sessions; all methods
// observe the engine head (the most recently committed version).
//
// Implementations live in the memoryengine, badgerengine and sqliteengine
// packages.
type StorageEngine interface {
	// CurrentVersion returns the version of the most recent commit.
	// A freshly created engine starts at version 0.
	CurrentVersion() VersionUint

	// RowAttached reports whether the record identified by key is live in
	// table. Engines that can fail to answer (I/O errors) report false.
	RowAttached(table string, key RowKeyUint) bool

	// RowVersion returns the version of the commit that last wrote the record
	// and whether the record is live.
	RowVersion(table string, key RowKeyUint) (VersionUint, bool)

	// ReadRow returns the JSON payload of a live record.
	// Returns ErrRowNotFound when the record is absent or detached.
	ReadRow(table string, key RowKeyUint) ([]byte, error)

	// RemoveRow erases a record using compaction: the record in the last slot
	// of the table moves into the freed slot, so storage stays dense at the
	// cost of slot-position stability. Returns the version of the commit that
	// performed the removal, or ErrRowNotFound when the record is absent.
	RemoveRow(table string, key RowKeyUint) (VersionUint, error)

	// ExecuteQuery evaluates spec against the engine head and returns the
	// matching record keys in slot order together with the version the result
	// was computed at. The version and key set are captured atomically.
	ExecuteQuery(ctx context.Context, spec QuerySpec) (QueryResult, error)
}

// QueryResult is the raw outcome of a query evaluated by a storage engine:
// the matching record keys in slot order and the engine version they were
// computed at.
type QueryResult struct {
	Version VersionUint
	Keys    []RowKeyUint
}
