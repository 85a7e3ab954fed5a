// Package sqlite provides the SQLite implementation of driven.Repository.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database holds workflows and every
// record produced while running them: documents, requirements, questions, answers
// and per-step results.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Dependent tables reference workflows with ON DELETE CASCADE.
//
// # Data Location
//
// By default, the database is stored at ~/.autorfp/data/autorfp.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
