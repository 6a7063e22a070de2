package livestore

import (
	"errors"
)

var ErrInvalidState = errors.New("operation on an invalid entity or closed session")
var ErrStaleHandover = errors.New("handover token version is incompatible with the session version")
var ErrHandoverConsumed = errors.New("handover token was already consumed")
var ErrQueryFailed = errors.New("query execution failed")
var ErrNilStorageEngine = errors.New("nil storage engine supplied")
var ErrNilDispatcher = errors.New("nil query dispatcher supplied")
var ErrEmptyTableName = errors.New("empty table name supplied")
var ErrInvalidPayload = errors.New("payload is not valid JSON")
var ErrRowNotFound = errors.New("row not found or detached")
var ErrEngineClosed = errors.New("storage engine is closed")
var ErrNilListener = errors.New("nil listener supplied")
var ErrIndexOutOfRange = errors.New("collection index out of range")

// VersionUint is a type alias for uint64, representing a committed storage version.
type VersionUint = uint64

// RowKeyUint is a type alias for uint64, representing the stable key of a stored record.
// Keys survive compaction; slot positions do not.
type RowKeyUint = uint64
