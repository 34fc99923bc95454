package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"taskhub.io/internal/model"
)

var userColumns = []string{
	"u.id", "u.tenant_id", "u.email", "u.password_hash", "u.full_name",
	"u.role", "u.is_active", "u.created_at", "u.updated_at",
}

func scanUser(row scanner) (model.User, error) {
	var (
		u        model.User
		tenantID sql.NullString
	)
	if err := row.Scan(&u.ID, &tenantID, &u.Email, &u.PasswordHash, &u.FullName,
		&u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, mapErr(err)
	}
	u.TenantID = tenantID.String
	return u, nil
}

// emailScope matches email within tenantID, or among platform identities
// when tenantID is empty.
func emailScope(tenantID, email string) sq.And {
	scope := sq.And{sq.Expr("lower(u.email) = lower(?)", email)}
	if tenantID == "" {
		return append(scope, sq.Eq{"u.tenant_id": nil})
	}
	return append(scope, sq.Eq{"u.tenant_id": tenantID})
}

func (t *tx) InsertUser(ctx context.Context, u model.User) error {
	_, err := t.exec(ctx, psql.Insert("users").
		Columns("id", "tenant_id", "email", "password_hash", "full_name", "role", "is_active", "created_at", "updated_at").
		Values(u.ID, nullIfEmpty(u.TenantID), u.Email, u.PasswordHash, u.FullName, u.Role, u.Active, u.CreatedAt, u.UpdatedAt))
	return err
}

func (t *tx) userWhere(ctx context.Context, pred sq.Sqlizer) (model.User, error) {
	row, err := t.queryRow(ctx, psql.Select(userColumns...).From("users u").Where(pred))
	if err != nil {
		return model.User{}, err
	}
	return scanUser(row)
}

func (t *tx) UserByID(ctx context.Context, id string) (model.User, error) {
	return t.userWhere(ctx, sq.Eq{"u.id": id})
}

func (t *tx) UserByEmail(ctx context.Context, tenantID, email string) (model.User, error) {
	return t.userWhere(ctx, emailScope(tenantID, email))
}

func (t *tx) EmailTaken(ctx context.Context, tenantID, email string) (bool, error) {
	return t.exists(ctx, psql.Select("1").From("users u").Where(emailScope(tenantID, email)))
}

func (t *tx) UpdateUser(ctx context.Context, id string, upd model.UserUpdate, at time.Time) (model.User, error) {
	set := map[string]any{"updated_at": at}
	if upd.FullName != nil {
		set["full_name"] = *upd.FullName
	}
	if upd.Role != nil {
		set["role"] = *upd.Role
	}
	if upd.Active != nil {
		set["is_active"] = *upd.Active
	}
	if err := t.execOne(ctx, psql.Update("users").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
		return model.User{}, err
	}
	return t.UserByID(ctx, id)
}

// DeleteUser removes the row; foreign keys null out created_by and
// assigned_to references.
func (t *tx) DeleteUser(ctx context.Context, id string) error {
	return t.execOne(ctx, psql.Delete("users").Where(sq.Eq{"id": id}))
}

func (t *tx) ListUsers(ctx context.Context, tenantID string, f model.UserFilter, p model.Page) ([]model.User, int, error) {
	where := sq.And{sq.Eq{"u.tenant_id": tenantID}}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := containsPattern(s)
		where = append(where, sq.Or{
			sq.Expr("u.full_name ilike ?", pattern),
			sq.Expr("u.email ilike ?", pattern),
		})
	}
	if f.Role != "" {
		where = append(where, sq.Eq{"u.role": f.Role})
	}

	total, err := t.count(ctx, psql.Select("count(*)").From("users u").Where(where))
	if err != nil {
		return nil, 0, err
	}
	rows, err := t.query(ctx, paged(psql.Select(userColumns...).From("users u").Where(where).
		OrderBy("u.created_at desc", "u.id desc"), p))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (t *tx) CountActiveUsers(ctx context.Context, tenantID string) (int, error) {
	return t.count(ctx, psql.Select("count(*)").From("users").
		Where(sq.Eq{"tenant_id": tenantID, "is_active": true}))
}
