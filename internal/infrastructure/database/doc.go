// Package database manages the SQLite connection and schema migrations
// for CAD Core.
//
// The connection is tuned for SQLite's single-writer model (one pooled
// connection, WAL journal, busy timeout). Migrations are embedded into
// the binary by the top-level migrations package and applied in version
// order, one transaction each.
package database
