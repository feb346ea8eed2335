package persistence

import "database/sql"

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		ts INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_type_ts ON events(event_type, ts);

	CREATE TABLE IF NOT EXISTS contracts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		frequency TEXT NOT NULL,
		trigger_event TEXT NOT NULL DEFAULT '',
		conditions TEXT NOT NULL,
		violation_message TEXT NOT NULL DEFAULT '',
		start_time INTEGER NOT NULL DEFAULT 0,
		end_time INTEGER NOT NULL DEFAULT 0,
		last_run INTEGER NOT NULL DEFAULT 0,
		next_run INTEGER NOT NULL DEFAULT 0,
		is_valid BOOLEAN NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_contracts_trigger ON contracts(trigger_event);

	CREATE TABLE IF NOT EXISTS queue_stats (
		name TEXT PRIMARY KEY,
		last_consumed_id INTEGER NOT NULL DEFAULT 0
	);`

// NewSQLiteStore initializes the required schema in the given database and
// returns a store for events, contracts and cursors.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
func NewSQLiteStore(db *sql.DB) (*SQLStore, error) {
	return newSQLStore(db, dialect{name: "sqlite", schema: sqliteSchema})
}
