// Package memoryengine provides the in-process reference implementation of
// the livestore.StorageEngine contract.
//
// Rows live in dense per-table slot arrays with a key-to-slot directory on
// the side. Removal compacts: the last record of the table moves into the
// freed slot, so slot positions are not stable across removals while record
// keys are. Every mutation commits a new monotonically increasing engine
// version; each row remembers the versions it was added and last modified at.
//
// The engine is safe for concurrent use by multiple sessions. It is the
// engine used throughout the test suites and is equally suited to production
// use when persistence is not required.
package memoryengine
