// Package contentstore persists generated content packages and run history
// in a SQLite database under data_dir.
//
// The schema is embedded and versioned. Older databases are migrated forward
// on open; a database written by a newer version fails with ErrSchemaMismatch.
// Writes retry briefly on SQLITE_BUSY. HistoryRecorder subscribes to the
// run lifecycle bus and keeps run_history bounded to the configured limit.
package contentstore
