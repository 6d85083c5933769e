// Package store persists the studio's working state in SQLite and exposes
// helpers for driving project, run, and QA-finding lifecycles.
//
// The Store manages the database connection, schema initialization, the
// versioned migration runner with its backup/rollback protocol, schema drift
// repair, and the startup recovery that closes out runs left behind by a
// crashed process. Projects with status "pending" form a FIFO work queue
// consumed oldest-first.
//
// The database is owned by exactly one process at a time. Every mutating
// operation commits as a single transaction; recovery logic relies on never
// observing a half-applied row.
//
// Treat this package as the single source of truth for store semantics; when
// you add tables or columns, add a migration step in migrate.go and extend
// the expected column sets in drift.go.
package store
