package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
)

// Dialect names a supported SQL database.
type Dialect string

const (
	// DialectSQLite uses ? placeholders.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres uses $n placeholders.
	DialectPostgres Dialect = "postgres"
)

// rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const schema = `
CREATE TABLE IF NOT EXISTS flowmesh_sessions (
	id         TEXT PRIMARY KEY,
	app_name   TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT '{}',
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS flowmesh_events (
	session_id TEXT NOT NULL,
	seq        BIGINT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// SQLStoreOptions configures a SQLStore.
type SQLStoreOptions struct {
	Logger logging.Logger
	// ConnectTimeout bounds the initial ping of network databases.
	ConnectTimeout time.Duration
	// SkipMigrate leaves schema creation to the operator.
	SkipMigrate bool
}

// SQLStore persists sessions through database/sql. Events are stored as JSON
// rows numbered in append order; state is stored as a JSON object merged on
// every append that carries a delta. Values read back follow encoding/json
// decoding rules (numbers become float64).
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  logging.Logger
}

var _ core.SessionStore = (*SQLStore)(nil)

// NewSQLStore wraps an open database. The schema is not created; call
// Migrate when needed.
func NewSQLStore(db *sql.DB, dialect Dialect, optFns ...func(o *SQLStoreOptions)) *SQLStore {
	opts := applySQLOptions(optFns)
	return &SQLStore{db: db, dialect: dialect, logger: opts.Logger}
}

// NewSQLiteStore opens (or creates) a SQLite database at path and ensures
// the schema exists. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string, optFns ...func(o *SQLStoreOptions)) (*SQLStore, error) {
	opts := applySQLOptions(optFns)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	return open(db, DialectSQLite, opts)
}

// NewPostgresStore connects to PostgreSQL using dsn and ensures the schema
// exists.
func NewPostgresStore(dsn string, optFns ...func(o *SQLStoreOptions)) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	opts := applySQLOptions(optFns)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return open(db, DialectPostgres, opts)
}

func applySQLOptions(optFns []func(o *SQLStoreOptions)) SQLStoreOptions {
	opts := SQLStoreOptions{
		Logger:         logging.NoOpLogger{},
		ConnectTimeout: 10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

func open(db *sql.DB, dialect Dialect, opts SQLStoreOptions) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect, logger: opts.Logger}
	if !opts.SkipMigrate {
		if err := s.Migrate(context.Background()); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the session and event tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate session schema: %w", err)
	}
	s.logger.Debug("session.sql.migrated", "dialect", string(s.dialect))
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Create registers a new session. An empty sessionID gets a generated one.
func (s *SQLStore) Create(ctx context.Context, appName, userID, sessionID string) (*core.Session, error) {
	if sessionID == "" {
		sessionID = core.NewID()
	}

	sess := core.NewSession(sessionID)
	sess.AppName = appName
	sess.UserID = userID

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO flowmesh_sessions (id, app_name, user_id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		sessionID, appName, userID, "{}", sess.Created.UnixNano(), sess.Updated.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("create session %s: %w", sessionID, core.ErrSessionExists)
	}

	s.logger.Debug("session.sql.created", "session_id", sessionID, "app_name", appName, "user_id", userID)

	return sess, nil
}

// Get loads a session with its full event log.
func (s *SQLStore) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	var (
		appName, userID, stateRaw string
		created, updated          int64
	)

	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT app_name, user_id, state, created_at, updated_at
		FROM flowmesh_sessions WHERE id = ?`), sessionID,
	).Scan(&appName, &userID, &stateRaw, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get session %s: %w", sessionID, core.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	state, err := decodeState(stateRaw)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	events, err := s.loadEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sess := core.NewSession(sessionID)
	sess.AppName = appName
	sess.UserID = userID
	sess.State = state
	sess.Events = events
	sess.Created = time.Unix(0, created).UTC()
	sess.Updated = time.Unix(0, updated).UTC()

	return sess, nil
}

func (s *SQLStore) loadEvents(ctx context.Context, sessionID string) ([]core.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT data FROM flowmesh_events WHERE session_id = ? ORDER BY seq`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("load events of %s: %w", sessionID, err)
	}
	defer rows.Close()

	events := []core.Event{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan event of %s: %w", sessionID, err)
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("decode event of %s: %w", sessionID, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load events of %s: %w", sessionID, err)
	}

	return events, nil
}

// AppendEvent stores ev after the session's last event and merges its state
// delta, in one transaction.
func (s *SQLStore) AppendEvent(ctx context.Context, sessionID string, ev core.Event) error {
	if ev.SessionID != "" && ev.SessionID != sessionID {
		return fmt.Errorf("append event %s: %w", ev.ID, core.ErrSessionMismatch)
	}
	ev.SessionID = sessionID

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		state, err := s.lockState(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		var last int64
		if err := tx.QueryRowContext(ctx, s.dialect.rebind(`
			SELECT COALESCE(MAX(seq), 0) FROM flowmesh_events WHERE session_id = ?`), sessionID,
		).Scan(&last); err != nil {
			return fmt.Errorf("next sequence of %s: %w", sessionID, err)
		}

		now := time.Now().UTC().UnixNano()
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO flowmesh_events (session_id, seq, id, data, created_at)
			VALUES (?, ?, ?, ?, ?)`),
			sessionID, last+1, ev.ID, string(data), now,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}

		maps.Copy(state, ev.Actions.StateDelta)

		return s.writeState(ctx, tx, sessionID, state, now)
	})
}

// UpdateState merges delta into the session state.
func (s *SQLStore) UpdateState(ctx context.Context, sessionID string, delta map[string]any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		state, err := s.lockState(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		maps.Copy(state, delta)
		return s.writeState(ctx, tx, sessionID, state, time.Now().UTC().UnixNano())
	})
}

// Delete removes a session and its events. Deleting an unknown session is
// not an error.
func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM flowmesh_events WHERE session_id = ?`), sessionID); err != nil {
			return fmt.Errorf("delete events of %s: %w", sessionID, err)
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM flowmesh_sessions WHERE id = ?`), sessionID); err != nil {
			return fmt.Errorf("delete session %s: %w", sessionID, err)
		}
		return nil
	})
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("session.sql.rollback", "error", rbErr.Error())
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) lockState(ctx context.Context, tx *sql.Tx, sessionID string) (map[string]any, error) {
	query := `SELECT state FROM flowmesh_sessions WHERE id = ?`
	if s.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}

	var raw string
	err := tx.QueryRowContext(ctx, s.dialect.rebind(query), sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read state of %s: %w", sessionID, err)
	}

	return decodeState(raw)
}

func (s *SQLStore) writeState(ctx context.Context, tx *sql.Tx, sessionID string, state map[string]any, now int64) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state of %s: %w", sessionID, err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`
		UPDATE flowmesh_sessions SET state = ?, updated_at = ? WHERE id = ?`),
		string(raw), now, sessionID,
	); err != nil {
		return fmt.Errorf("write state of %s: %w", sessionID, err)
	}
	return nil
}

func decodeState(raw string) (map[string]any, error) {
	state := map[string]any{}
	if raw == "" {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}
