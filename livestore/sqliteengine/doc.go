// Package sqliteengine provides a SQLite implementation of the storage
// engine contract.
//
// Records of all logical tables live in one physical table with a dense slot
// column that keeps query order; a meta table carries the version and key
// counters. Writes commit in database transactions, field predicates are
// pushed down as json_extract comparisons, and removal compacts by moving the
// record in the highest slot into the freed one.
//
// Key features:
//   - Multiple database adapter support (SQL, SQLX)
//   - Transaction-safe writes with a single monotonic version counter
//   - JSON field predicate push-down via json_extract
//   - Configurable table name and optional logging
//
// Usage examples:
//
//	// Basic usage
//	db, _ := sql.Open("sqlite3", "file:store.db")
//	engine, _ := sqliteengine.NewEngineFromSQLDB(db)
//	_ = engine.InitSchema(context.Background())
//
//	// With a custom table name and logging
//	engine, _ := sqliteengine.NewEngineFromSQLDB(
//		db,
//		sqliteengine.WithTableName("my_rows"),
//		sqliteengine.WithLogger(logger),
//	)
//
//	key, version, _ := engine.InsertRow("people", []byte(`{"name": "Ada"}`))
//	result, _ := engine.ExecuteQuery(ctx, livestore.NewQuery("people"))
package sqliteengine
