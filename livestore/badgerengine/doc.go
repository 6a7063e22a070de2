// Package badgerengine persists the storage engine contract in BadgerDB.
//
// Row payloads, row metadata, the per-table slot directory and the global
// version counter live under dedicated key prefixes; every write commits in a
// single badger transaction, so queries observe consistent snapshots. The
// engine supports badger's in-memory mode for tests and an optional value-log
// garbage collection loop for long-running processes.
package badgerengine
