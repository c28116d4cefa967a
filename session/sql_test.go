package session

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
)

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	assert.Equal(t, q, DialectSQLite.rebind(q))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", DialectPostgres.rebind(q))
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Create(ctx, "app", "alice", "s1")
	require.NoError(t, err)

	_, err = store.Create(ctx, "app", "alice", "s1")
	assert.ErrorIs(t, err, core.ErrSessionExists)

	first := core.NewUserMessageEvent("What is 15+25?")
	second := core.NewToolResultEvent("calculator", []core.FunctionResponse{{ID: "c1", Name: "add", Response: "40"}})
	second.Author = "calculator"
	second.Actions.StateDelta = map[string]any{"last_result": "40"}

	require.NoError(t, store.AppendEvent(ctx, "s1", first))
	require.NoError(t, store.AppendEvent(ctx, "s1", second))
	require.NoError(t, store.UpdateState(ctx, "s1", map[string]any{"tier": "gold"}))

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, "app", sess.AppName)
	assert.Equal(t, "alice", sess.UserID)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, first.ID, sess.Events[0].ID)
	assert.Equal(t, "What is 15+25?", sess.Events[0].Text())
	assert.Equal(t, "user", sess.Events[0].Author)
	assert.Equal(t, "calculator", sess.Events[1].Author)
	assert.Equal(t, "40", sess.Events[1].FunctionResponses()[0].Response)
	assert.Equal(t, map[string]any{"last_result": "40", "tier": "gold"}, sess.StateSnapshot())

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.ErrorIs(t, store.AppendEvent(ctx, "s1", first), core.ErrSessionNotFound)
}

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *SQLStore) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return mock, NewSQLStore(db, DialectPostgres)
}

func TestPostgresStore_AppendEvent(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock, ev core.Event)
		wantErr   error
		errText   string
	}{
		{
			name: "appends after last sequence and merges state",
			setupMock: func(mock sqlmock.Sqlmock, ev core.Event) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT state FROM flowmesh_sessions WHERE id = \$1 FOR UPDATE`).
					WithArgs("s1").
					WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(`{"a":"b"}`))
				mock.ExpectQuery("SELECT COALESCE").
					WithArgs("s1").
					WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(2)))
				mock.ExpectExec("INSERT INTO flowmesh_events").
					WithArgs("s1", int64(3), ev.ID, sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("UPDATE flowmesh_sessions").
					WithArgs(`{"a":"b","k":"v"}`, sqlmock.AnyArg(), "s1").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "unknown session rolls back",
			setupMock: func(mock sqlmock.Sqlmock, _ core.Event) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT state FROM flowmesh_sessions").
					WithArgs("s1").
					WillReturnRows(sqlmock.NewRows([]string{"state"}))
				mock.ExpectRollback()
			},
			wantErr: core.ErrSessionNotFound,
		},
		{
			name: "insert failure rolls back",
			setupMock: func(mock sqlmock.Sqlmock, _ core.Event) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT state FROM flowmesh_sessions").
					WithArgs("s1").
					WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(`{}`))
				mock.ExpectQuery("SELECT COALESCE").
					WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))
				mock.ExpectExec("INSERT INTO flowmesh_events").
					WillReturnError(errors.New("connection refused"))
				mock.ExpectRollback()
			},
			errText: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, store := setupMockStore(t)

			ev := core.NewUserMessageEvent("hello")
			ev.Actions.StateDelta = map[string]any{"k": "v"}
			tt.setupMock(mock, ev)

			err := store.AppendEvent(context.Background(), "s1", ev)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				assert.ErrorContains(t, err, tt.errText)
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_CreateConflict(t *testing.T) {
	mock, store := setupMockStore(t)

	mock.ExpectExec("INSERT INTO flowmesh_sessions").
		WithArgs("s1", "app", "alice", "{}", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.Create(context.Background(), "app", "alice", "s1")
	assert.ErrorIs(t, err, core.ErrSessionExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	mock, store := setupMockStore(t)

	mock.ExpectQuery("SELECT app_name, user_id, state, created_at, updated_at").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"app_name", "user_id", "state", "created_at", "updated_at"}).
			AddRow("app", "alice", `{"tier":"gold"}`, int64(1), int64(2)))
	mock.ExpectQuery("SELECT data FROM flowmesh_events").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow(`{"id":"e1","kind":"message","source":{"kind":"user"},"author":"user","timestamp":"2026-01-01T00:00:00Z","content":{"role":"user","parts":[{"type":"text","text":"hi"}]},"actions":{}}`))

	sess, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, "gold", sess.State["tier"])
	require.Len(t, sess.Events, 1)
	assert.Equal(t, "hi", sess.Events[0].Text())
	assert.NoError(t, mock.ExpectationsWereMet())
}
