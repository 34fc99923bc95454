// Package pg implements the store contract on PostgreSQL through the pgx
// database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"taskhub.io/internal/model"
	"taskhub.io/internal/store"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrInvalidText         = "22P02"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	_ store.Store     = (*Store)(nil)
	_ store.AuditSink = (*Store)(nil)
	_ store.Tx        = (*tx)(nil)
)

// Pool tunes the connection pool. Zero fields keep the defaults.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *sql.DB
}

func Open(dsn string, pool Pool) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 50
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 25
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 15 * time.Minute
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InTx runs fn in a read-committed transaction. Quota checks rely on
// LockTenant's row lock rather than on the isolation level.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	query, args, err := psql.Insert("audit_logs").
		Columns("id", "tenant_id", "user_id", "action", "entity_type", "entity_id", "ip_address", "created_at").
		Values(e.ID, nullIfEmpty(e.TenantID), nullIfEmpty(e.ActorID), e.Action, e.EntityType, nullIfEmpty(e.EntityID), nullIfEmpty(e.SourceAddr), e.OccurredAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

type tx struct {
	q *sql.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *tx) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	return res, nil
}

// execOne runs b and reports ErrNotFound when no row was touched.
func (t *tx) execOne(ctx context.Context, b sq.Sqlizer) error {
	res, err := t.exec(ctx, b)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *tx) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return t.q.QueryRowContext(ctx, query, args...), nil
}

func (t *tx) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return t.q.QueryContext(ctx, query, args...)
}

func (t *tx) count(ctx context.Context, b sq.SelectBuilder) (int, error) {
	row, err := t.queryRow(ctx, b)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (t *tx) exists(ctx context.Context, b sq.SelectBuilder) (bool, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return false, err
	}
	var ok bool
	if err := t.q.QueryRowContext(ctx, "select exists("+query+")", args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// mapErr translates driver errors into the model's sentinels.
func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		switch pgErr.ConstraintName {
		case "tenants_subdomain_key":
			return model.ErrDuplicateSubdomain
		case "users_tenant_email_key", "users_platform_email_key":
			return model.ErrDuplicateEmail
		}
		return fmt.Errorf("%w: %s", model.ErrConflict, pgErr.ConstraintName)
	case pgErrForeignKeyViolation:
		if pgErr.ConstraintName == "tasks_assigned_to_fkey" {
			return model.ErrInvalidAssignee
		}
		return model.ErrNotFound
	case pgErrInvalidText:
		// A malformed uuid cannot name any row.
		return model.ErrNotFound
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// containsPattern builds an ILIKE pattern matching s anywhere.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func paged(b sq.SelectBuilder, p model.Page) sq.SelectBuilder {
	return b.Limit(uint64(p.Limit)).Offset(uint64(p.Offset()))
}
