// Package livestore provides the core abstractions for an embedded,
// goroutine-confined object store with asynchronous queries and change
// notification.
//
// Rows live in a shared, versioned storage engine (see the StorageEngine
// interface and the memoryengine, badgerengine and sqliteengine packages).
// Each goroutine opens its own Session onto the shared engine; the Session
// and every Entity, Results handle and listener bound to it may only be used
// from that goroutine. The only state crossing goroutines is immutable: a
// query dispatched to the worker pool resolves into a HandoverToken that the
// owning goroutine imports at a compatible storage version.
//
// Key types:
//   - Session: a goroutine-confined view of the engine at a pinned version
//   - Entity: a live reference to one stored record
//   - Results: a live, ordered collection produced by a query
//   - ChangeSet: a classified positional diff (Initial/Update/Error)
//   - QuerySpec: the minimal description of a query the engines understand
//
// Common usage pattern:
//
//	session, err := livestore.OpenSession(engine, livestore.WithLogger(logger))
//	if err != nil {
//		// handle error
//	}
//	defer session.Close()
//
//	people, err := session.FindAllAsync(livestore.NewQuery("person").MatchField("city", "Oslo"))
//	if err != nil {
//		// handle error
//	}
//	_ = people.AddChangeListener(myListener)
//
//	// later, on the same goroutine: deliver completions and change sets
//	_ = session.Refresh()
//
// Completions of asynchronous queries are delivered on the owning goroutine
// only, during Session.Refresh, Entity.Load or Results.Load.
package livestore
