package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/sentinel/pkg/api"
)

// dialect captures the few places where SQLite and PostgreSQL differ.
type dialect struct {
	name   string
	schema string
	// numbered placeholders ($1, $2, ...) instead of '?'.
	numbered bool
	// appendLock, when set, runs inside the Append transaction before the
	// insert so ids become visible in the order they were assigned.
	appendLock string
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements EventStore, ContractStore and CursorStore on top of
// database/sql. Use NewSQLiteStore or NewPostgresStore to construct one; the
// caller owns the *sql.DB and must import the driver.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// Ensure SQLStore implements the interfaces.
var _ EventStore = (*SQLStore)(nil)

var _ ContractStore = (*SQLStore)(nil)

var _ CursorStore = (*SQLStore)(nil)

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	if _, err := s.db.Exec(s.dialect.schema); err != nil {
		return unavailable(s.dialect.name+" schema", err)
	}
	return nil
}

// Persistence returns the store as a bundle.
func (s *SQLStore) Persistence() Persistence {
	return Persistence{Events: s, Contracts: s, Cursors: s}
}

// bind rewrites '?' placeholders for dialects with numbered parameters.
func (s *SQLStore) bind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// encodeTags stores tags as a JSON array so commas and blanks survive.
// No tags is stored as the empty string.
func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeTags reads a tags column. Values that are not a JSON array are
// treated as a comma-separated list.
func decodeTags(s string) ([]string, error) {
	if !strings.HasPrefix(s, "[") {
		return api.ParseTags(s), nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *SQLStore) Append(ctx context.Context, ev *api.Event) (int64, error) {
	tags, err := encodeTags(ev.Tags)
	if err != nil {
		return 0, fmt.Errorf("append event: encode tags: %w", err)
	}
	if s.dialect.appendLock == "" {
		return s.insertEvent(ctx, s.db, ev, tags)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("append event", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.dialect.appendLock); err != nil {
		return 0, unavailable("append event lock", err)
	}
	id, err := s.insertEvent(ctx, tx, ev, tags)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		ev.ID = 0
		return 0, unavailable("append event commit", err)
	}
	return id, nil
}

func (s *SQLStore) insertEvent(ctx context.Context, q rowQuerier, ev *api.Event, tags string) (int64, error) {
	row := q.QueryRowContext(ctx, s.bind(`
		INSERT INTO events (event_type, ts, description, tags)
		VALUES (?, ?, ?, ?)
		RETURNING id`),
		ev.EventType,
		ev.Timestamp,
		ev.Description,
		tags,
	)
	if err := row.Scan(&ev.ID); err != nil {
		return 0, unavailable("append event", err)
	}
	return ev.ID, nil
}

func (s *SQLStore) RangeQuery(ctx context.Context, eventTypes []string, minTs, maxTs int64) ([]api.Event, error) {
	if len(eventTypes) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(eventTypes)+2)
	args = append(args, minTs, maxTs)
	for _, t := range eventTypes {
		args = append(args, t)
	}
	in := strings.TrimSuffix(strings.Repeat("?, ", len(eventTypes)), ", ")

	return s.queryEvents(ctx, "range query", `
		SELECT id, event_type, ts, description, tags
		FROM events
		WHERE ts >= ? AND ts < ? AND event_type IN (`+in+`)
		ORDER BY ts ASC, id ASC`, args...)
}

func (s *SQLStore) LatestBefore(ctx context.Context, eventType string, maxTs int64) (*api.Event, error) {
	events, err := s.queryEvents(ctx, "latest before", `
		SELECT id, event_type, ts, description, tags
		FROM events
		WHERE event_type = ? AND ts < ?
		ORDER BY ts DESC, id DESC
		LIMIT 1`, eventType, maxTs)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

func (s *SQLStore) ItemsAfter(ctx context.Context, lastID int64, limit int) ([]api.Event, error) {
	return s.queryEvents(ctx, "items after", `
		SELECT id, event_type, ts, description, tags
		FROM events
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?`, lastID, limit)
}

func (s *SQLStore) MostRecentID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, unavailable("most recent id", err)
	}
	return id.Int64, nil
}

func (s *SQLStore) queryEvents(ctx context.Context, op, query string, args ...any) ([]api.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var out []api.Event
	for rows.Next() {
		var (
			ev   api.Event
			tags string
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Timestamp, &ev.Description, &tags); err != nil {
			return nil, unavailable(op, err)
		}
		if ev.Tags, err = decodeTags(tags); err != nil {
			return nil, fmt.Errorf("%s: event %d: decode tags: %w", op, ev.ID, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

const contractColumns = `id, name, description, frequency, trigger_event, conditions,
	violation_message, start_time, end_time, last_run, next_run, is_valid`

func (s *SQLStore) Create(ctx context.Context, c *api.Contract) (int64, error) {
	if err := prepareNew(c); err != nil {
		return 0, err
	}
	row := s.db.QueryRowContext(ctx, s.bind(`
		INSERT INTO contracts (name, description, frequency, trigger_event, conditions,
			violation_message, start_time, end_time, last_run, next_run, is_valid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		c.Name,
		c.Description,
		string(c.Frequency),
		c.TriggerEvent,
		c.Conditions,
		c.ViolationMessage,
		msOf(c.StartTime),
		msOf(c.EndTime),
		msOf(c.LastRunDate),
		msOf(c.NextRunDate),
		c.IsValid,
	)
	if err := row.Scan(&c.ID); err != nil {
		return 0, unavailable("create contract", err)
	}
	return c.ID, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (*api.Contract, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+contractColumns+` FROM contracts WHERE id = ?`), id)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, unavailable("get contract", err)
	}
	return c, nil
}

func (s *SQLStore) TriggeredBy(ctx context.Context, eventType string, now time.Time) ([]*api.Contract, error) {
	cs, err := s.queryContracts(ctx, "triggered by", `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE trigger_event = ? AND is_valid = ?
		ORDER BY id ASC`, eventType, true)
	if err != nil {
		return nil, err
	}
	return filterContracts(cs, func(c *api.Contract) bool { return triggeredBy(c, eventType, now) }), nil
}

func (s *SQLStore) OpenContracts(ctx context.Context, now time.Time) ([]*api.Contract, error) {
	cs, err := s.queryContracts(ctx, "open contracts", `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE trigger_event = '' AND is_valid = ?
		ORDER BY id ASC`, true)
	if err != nil {
		return nil, err
	}
	return filterContracts(cs, func(c *api.Contract) bool { return openAndDue(c, now) }), nil
}

func (s *SQLStore) Update(ctx context.Context, c *api.Contract) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.bind(`
		UPDATE contracts
		SET name = ?, description = ?, frequency = ?, trigger_event = ?, conditions = ?,
		    violation_message = ?, start_time = ?, end_time = ?, last_run = ?, next_run = ?,
		    is_valid = ?
		WHERE id = ?`),
		c.Name,
		c.Description,
		string(c.Frequency),
		c.TriggerEvent,
		c.Conditions,
		c.ViolationMessage,
		msOf(c.StartTime),
		msOf(c.EndTime),
		msOf(c.LastRunDate),
		msOf(c.NextRunDate),
		c.IsValid,
		c.ID,
	)
	if err != nil {
		return false, unavailable("update contract", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("update contract", err)
	}
	return affected > 0, nil
}

func (s *SQLStore) queryContracts(ctx context.Context, op, query string, args ...any) ([]*api.Contract, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var out []*api.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*api.Contract, error) {
	var (
		c                            api.Contract
		freq                         string
		start, end, lastRun, nextRun int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &freq, &c.TriggerEvent, &c.Conditions,
		&c.ViolationMessage, &start, &end, &lastRun, &nextRun, &c.IsValid); err != nil {
		return nil, err
	}
	c.Frequency = api.Frequency(freq)
	c.StartTime = timeOf(start)
	c.EndTime = timeOf(end)
	c.LastRunDate = timeOf(lastRun)
	c.NextRunDate = timeOf(nextRun)
	return &c, nil
}

func filterContracts(in []*api.Contract, keep func(*api.Contract) bool) []*api.Contract {
	out := in[:0]
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s *SQLStore) LoadOrCreate(ctx context.Context, name string) (api.QueueStats, error) {
	if _, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO queue_stats (name, last_consumed_id) VALUES (?, 0)
		ON CONFLICT (name) DO NOTHING`), name); err != nil {
		return api.QueueStats{}, unavailable("load cursor", err)
	}

	stats := api.QueueStats{Name: name}
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT last_consumed_id FROM queue_stats WHERE name = ?`), name)
	if err := row.Scan(&stats.LastConsumedID); err != nil {
		return api.QueueStats{}, unavailable("load cursor", err)
	}
	return stats, nil
}

func (s *SQLStore) Save(ctx context.Context, stats api.QueueStats) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO queue_stats (name, last_consumed_id) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET last_consumed_id = excluded.last_consumed_id`),
		stats.Name, stats.LastConsumedID)
	return unavailable("save cursor", err)
}
