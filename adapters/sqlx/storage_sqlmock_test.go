package sqlx_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	storage "scoreboard/adapters/sqlx"
	"scoreboard/core"
)

func newMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock, func()) {
	return newMockStoreDriver(t, storage.DriverPostgres)
}

func newMockStoreDriver(t *testing.T, driver storage.Driver) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, string(driver)), driver)
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

func sqlmockTime() time.Time { return time.Now().UTC() }

func successEntry(actor core.ActorID, delta, prev, next int64, key string) core.AuditEntry {
	entry := core.NewAuditEntry(actor, core.ActionBonusCollect, delta)
	entry.PrevScore = prev
	entry.NewScore = next
	entry.Success = true
	entry.IdempotencyKey = key
	return entry
}

func TestSQLMock_EnsureSchemaPostgres(t *testing.T) {
	store, mock, cleanup := newMockStoreDriver(t, storage.DriverPostgres)
	defer cleanup()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS actor_scores`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS audit_log`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS audit_idempotency`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS audit_actor_time`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_EnsureSchemaMySQL(t *testing.T) {
	store, mock, cleanup := newMockStoreDriver(t, storage.DriverMySQL)
	defer cleanup()

	// MySQL rejects CREATE INDEX ... IF NOT EXISTS, so the indexes must be
	// declared inline and no separate index statements issued.
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS actor_scores`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS audit_log[\s\S]*UNIQUE KEY audit_idempotency[\s\S]*KEY audit_actor_time`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_ApplyScore(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	entry := successEntry("u1", 50, 0, 50, "u1:n1")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("u1:n1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO actor_scores`).
		WithArgs(core.ActorID("u1"), int64(50), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(entry.ID, entry.Actor, entry.Action, entry.Delta, entry.PrevScore,
			entry.NewScore, sqlmock.AnyArg(), true, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.ApplyScore(ctx, "u1", 50, entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_ApplyScore_IdempotentReplay(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	entry := successEntry("u1", 50, 0, 50, "u1:n1")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("u1:n1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	require.NoError(t, store.ApplyScore(ctx, "u1", 50, entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_ApplyScore_UpsertFailureRollsBack(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	entry := successEntry("u1", 50, 0, 50, "u1:n1")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("u1:n1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO actor_scores`).
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	err := store.ApplyScore(ctx, "u1", 50, entry)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetScore(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectQuery(`SELECT score FROM actor_scores`).
		WithArgs(core.ActorID("u1")).
		WillReturnRows(sqlmock.NewRows([]string{"score"}).AddRow(int64(75)))

	score, ok, err := store.GetScore(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(75), score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetScore_Absent(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT score FROM actor_scores`).
		WithArgs(core.ActorID("ghost")).
		WillReturnError(sql.ErrNoRows)

	_, ok, err := store.GetScore(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AppendAudit_FailurePath(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	entry := core.NewAuditEntry("u1", core.ActionBonusCollect, -5)
	entry.Success = false
	entry.Reason = core.ReasonInvalidDelta

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(entry.ID, entry.Actor, entry.Action, entry.Delta, int64(0), int64(0),
			sqlmock.AnyArg(), false, "invalid_delta", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.AppendAudit(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_LoadAll(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT actor_id, score, updated_at FROM actor_scores`).
		WillReturnRows(sqlmock.NewRows([]string{"actor_id", "score", "updated_at"}).
			AddRow("u1", int64(100), sqlmockTime()).
			AddRow("u2", int64(50), sqlmockTime()))

	all, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, core.ActorID("u1"), all[0].Actor)
	require.Equal(t, int64(100), all[0].Score)
	require.NoError(t, mock.ExpectationsWereMet())
}
