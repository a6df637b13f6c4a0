// Package storage persists the scheduler's event journal.
//
// Every job lifecycle event and task firing seen on the event bus can be
// appended as a Record and read back per job, newest last. Backends:
//   - file: JSON Lines, no dependencies
//   - sqlite: modernc.org/sqlite, built with -tags sqlite
package storage
