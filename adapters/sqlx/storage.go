// Package sqlx persists actor scores and the audit log in a relational
// database. The score upsert and the audit append happen in one transaction,
// and a unique index on the audit idempotency key makes retried persists
// no-ops.
package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"scoreboard/core"
	"scoreboard/engine"
)

// Driver identifies the SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL storage configuration.
type Config struct {
	Driver          Driver        `json:"driver" env:"SCOREBOARD_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"SCOREBOARD_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"SCOREBOARD_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"SCOREBOARD_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"SCOREBOARD_SQL_CONN_MAX_LIFETIME"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.ScoreStore over a SQL database.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens a connection pool and verifies it with a ping.
func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sql storage requires a DSN")
	}
	db, err := sqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql storage: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sql storage: %w", err)
	}
	return &Store{db: db, driver: cfg.Driver}, nil
}

// NewWithDB wraps an existing database handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// schemaStatements returns the DDL per dialect. MySQL has no IF NOT EXISTS
// form of CREATE INDEX, so its indexes are declared inline in CREATE TABLE.
func (s *Store) schemaStatements() []string {
	scores := `CREATE TABLE IF NOT EXISTS actor_scores (
		actor_id   VARCHAR(191) PRIMARY KEY,
		score      BIGINT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if s.driver == DriverMySQL {
		return []string{
			scores,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id              VARCHAR(36) PRIMARY KEY,
				actor_id        VARCHAR(191) NOT NULL,
				action          VARCHAR(64) NOT NULL,
				delta           BIGINT NOT NULL,
				prev_score      BIGINT NOT NULL,
				new_score       BIGINT NOT NULL,
				at              TIMESTAMP NOT NULL,
				success         BOOLEAN NOT NULL,
				reason          VARCHAR(64),
				idempotency_key VARCHAR(255),
				UNIQUE KEY audit_idempotency (idempotency_key),
				KEY audit_actor_time (actor_id, at)
			)`,
		}
	}
	return []string{
		scores,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id              VARCHAR(36) PRIMARY KEY,
			actor_id        VARCHAR(191) NOT NULL,
			action          VARCHAR(64) NOT NULL,
			delta           BIGINT NOT NULL,
			prev_score      BIGINT NOT NULL,
			new_score       BIGINT NOT NULL,
			at              TIMESTAMP NOT NULL,
			success         BOOLEAN NOT NULL,
			reason          VARCHAR(64),
			idempotency_key VARCHAR(255)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS audit_idempotency ON audit_log (idempotency_key)`,
		`CREATE INDEX IF NOT EXISTS audit_actor_time ON audit_log (actor_id, at)`,
	}
}

func (s *Store) upsertScoreSQL() string {
	if s.driver == DriverMySQL {
		return s.db.Rebind(`INSERT INTO actor_scores (actor_id, score, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE score = VALUES(score), updated_at = VALUES(updated_at)`)
	}
	return s.db.Rebind(`INSERT INTO actor_scores (actor_id, score, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (actor_id) DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`)
}

const insertAuditSQL = `INSERT INTO audit_log
	(id, actor_id, action, delta, prev_score, new_score, at, success, reason, idempotency_key)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *Store) ApplyScore(ctx context.Context, actor core.ActorID, newScore int64, entry core.AuditEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply score: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if entry.IdempotencyKey != "" {
		var done bool
		err = tx.GetContext(ctx, &done,
			s.db.Rebind(`SELECT EXISTS (SELECT 1 FROM audit_log WHERE idempotency_key = ?)`),
			entry.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("check idempotency key: %w", err)
		}
		if done {
			return tx.Commit()
		}
	}

	if _, err = tx.ExecContext(ctx, s.upsertScoreSQL(), actor, newScore, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	if err = s.insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit apply score: %w", err)
	}
	return nil
}

func (s *Store) insertAudit(ctx context.Context, tx *sqlx.Tx, entry core.AuditEntry) error {
	var key sql.NullString
	if entry.IdempotencyKey != "" {
		key = sql.NullString{String: entry.IdempotencyKey, Valid: true}
	}
	_, err := tx.ExecContext(ctx, s.db.Rebind(insertAuditSQL),
		entry.ID, entry.Actor, entry.Action, entry.Delta, entry.PrevScore, entry.NewScore,
		entry.Time, entry.Success, string(entry.Reason), key)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) GetScore(ctx context.Context, actor core.ActorID) (int64, bool, error) {
	var score int64
	err := s.db.GetContext(ctx, &score,
		s.db.Rebind(`SELECT score FROM actor_scores WHERE actor_id = ?`), actor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get score: %w", err)
	}
	return score, true, nil
}

func (s *Store) AppendAudit(ctx context.Context, entry core.AuditEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append audit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err = s.insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append audit: %w", err)
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]core.ActorScore, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT actor_id, score, updated_at FROM actor_scores`)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	defer rows.Close()

	var out []core.ActorScore
	for rows.Next() {
		var rec core.ActorScore
		if err := rows.Scan(&rec.Actor, &rec.Score, &rec.Updated); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score rows: %w", err)
	}
	return out, nil
}

// AuditFor returns the audit entries for one actor, oldest first, capped at
// limit when limit is positive.
func (s *Store) AuditFor(ctx context.Context, actor core.ActorID, limit int) ([]core.AuditEntry, error) {
	query := `SELECT id, actor_id, action, delta, prev_score, new_score, at, success, reason, idempotency_key
		FROM audit_log WHERE actor_id = ? ORDER BY at`
	args := []any{actor}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("load audit entries: %w", err)
	}
	defer rows.Close()

	var out []core.AuditEntry
	for rows.Next() {
		var e core.AuditEntry
		var reason string
		var key sql.NullString
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Delta, &e.PrevScore, &e.NewScore,
			&e.Time, &e.Success, &reason, &key); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Reason = core.FailureReason(reason)
		e.IdempotencyKey = key.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return out, nil
}

var _ engine.ScoreStore = (*Store)(nil)
