package persistence

import "database/sql"

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		event_type TEXT NOT NULL,
		ts BIGINT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_type_ts ON events(event_type, ts);

	CREATE TABLE IF NOT EXISTS contracts (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		frequency TEXT NOT NULL,
		trigger_event TEXT NOT NULL DEFAULT '',
		conditions TEXT NOT NULL,
		violation_message TEXT NOT NULL DEFAULT '',
		start_time BIGINT NOT NULL DEFAULT 0,
		end_time BIGINT NOT NULL DEFAULT 0,
		last_run BIGINT NOT NULL DEFAULT 0,
		next_run BIGINT NOT NULL DEFAULT 0,
		is_valid BOOLEAN NOT NULL DEFAULT TRUE
	);
	CREATE INDEX IF NOT EXISTS idx_contracts_trigger ON contracts(trigger_event);

	CREATE TABLE IF NOT EXISTS queue_stats (
		name TEXT PRIMARY KEY,
		last_consumed_id BIGINT NOT NULL DEFAULT 0
	);`

// postgresAppendLock serializes event inserts. BIGSERIAL hands out ids before
// commit, so without it a later id can commit first and a consumer reading
// ItemsAfter would move its cursor past the earlier one for good.
const postgresAppendLock = `SELECT pg_advisory_xact_lock(7390146271)`

// NewPostgresStore initializes the required schema in the given database and
// returns a store for events, contracts and cursors.
//
// It expects an *sql.DB that uses a PostgreSQL driver. The caller is
// responsible for importing the driver for its side effects, e.g.:
//
//	_ "github.com/jackc/pgx/v5/stdlib"
//
// and for providing a DSN via sql.Open("pgx", dsn).
func NewPostgresStore(db *sql.DB) (*SQLStore, error) {
	return newSQLStore(db, dialect{
		name:       "postgres",
		schema:     postgresSchema,
		numbered:   true,
		appendLock: postgresAppendLock,
	})
}
