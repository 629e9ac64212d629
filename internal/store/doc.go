// Package store provides durable storage for regionsync using SQLite.
//
// # Architecture
//
// The store package exposes three narrow interfaces, each owned by one consumer:
//
//   - RecordStore: the cached record set ("ads"), keyed by token
//   - RegionStateStore: per-region occupancy (inside/outside, last enter time)
//   - FingerprintStore: quantized location key -> hash of the last applied record set
//
// SQLiteStore implements all of them in a single struct (the Store interface),
// and MockStore provides the same contracts in memory for tests.
//
// # Upsert semantics
//
// UpsertRecords replaces every field of an existing row except Bookmarked, which
// is local-only state and survives resync:
//
//	INSERT INTO records (...) VALUES (...)
//	ON CONFLICT(token) DO UPDATE SET title = excluded.title, ...
//
// Each batch runs in one transaction, so a row is never partially written.
//
// # SQLite Configuration
//
// The default driver is modernc.org/sqlite ("sqlite"). Builds with cgo can use
// github.com/mattn/go-sqlite3 by passing driver "sqlite3" to NewSQLiteStoreWithDriver.
// The pool is pinned to a single connection: pragmas are per connection and an
// in-memory database exists only on the connection that created it.
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// # Error Handling
//
//   - ErrNotFound: requested row does not exist
//
// All methods accept context.Context for cancellation support.
package store
