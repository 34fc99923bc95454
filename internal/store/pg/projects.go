package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"taskhub.io/internal/model"
)

var projectColumns = []string{
	"p.id", "p.tenant_id", "p.name", "p.description", "p.status", "p.created_by",
	"p.created_at", "p.updated_at",
	"c.full_name", "c.email",
	"(select count(*) from tasks k where k.project_id = p.id)",
	"(select count(*) from tasks k where k.project_id = p.id and k.status = 'completed')",
}

func projectSelect() sq.SelectBuilder {
	return psql.Select(projectColumns...).From("projects p").LeftJoin("users c on c.id = p.created_by")
}

func scanProject(row scanner) (model.Project, error) {
	var (
		p                  model.Project
		createdBy          sql.NullString
		creatorName, email sql.NullString
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.Status, &createdBy,
		&p.CreatedAt, &p.UpdatedAt, &creatorName, &email, &p.TaskCount, &p.CompletedTaskCount); err != nil {
		return model.Project{}, mapErr(err)
	}
	if createdBy.Valid {
		p.CreatedBy = createdBy.String
		p.Creator = &model.UserSummary{ID: createdBy.String, FullName: creatorName.String, Email: email.String}
	}
	return p, nil
}

func (t *tx) scanProjects(ctx context.Context, b sq.SelectBuilder) ([]model.Project, error) {
	rows, err := t.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *tx) InsertProject(ctx context.Context, p model.Project) error {
	_, err := t.exec(ctx, psql.Insert("projects").
		Columns("id", "tenant_id", "name", "description", "status", "created_by", "created_at", "updated_at").
		Values(p.ID, p.TenantID, p.Name, p.Description, p.Status, nullIfEmpty(p.CreatedBy), p.CreatedAt, p.UpdatedAt))
	return err
}

func (t *tx) ProjectByID(ctx context.Context, id string) (model.Project, error) {
	row, err := t.queryRow(ctx, projectSelect().Where(sq.Eq{"p.id": id}))
	if err != nil {
		return model.Project{}, err
	}
	return scanProject(row)
}

func (t *tx) UpdateProject(ctx context.Context, id string, upd model.ProjectUpdate, at time.Time) (model.Project, error) {
	set := map[string]any{"updated_at": at}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if err := t.execOne(ctx, psql.Update("projects").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
		return model.Project{}, err
	}
	return t.ProjectByID(ctx, id)
}

// DeleteProject removes the project; its tasks go with it by cascade.
func (t *tx) DeleteProject(ctx context.Context, id string) error {
	return t.execOne(ctx, psql.Delete("projects").Where(sq.Eq{"id": id}))
}

func (t *tx) ListProjects(ctx context.Context, tenantID string, f model.ProjectFilter, p model.Page) ([]model.Project, int, error) {
	where := sq.And{sq.Eq{"p.tenant_id": tenantID}}
	if f.Status != "" {
		where = append(where, sq.Eq{"p.status": f.Status})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, sq.Expr("p.name ilike ?", containsPattern(s)))
	}

	total, err := t.count(ctx, psql.Select("count(*)").From("projects p").Where(where))
	if err != nil {
		return nil, 0, err
	}
	items, err := t.scanProjects(ctx, paged(projectSelect().Where(where).OrderBy("p.created_at desc", "p.id desc"), p))
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (t *tx) CountProjects(ctx context.Context, tenantID string) (int, error) {
	return t.count(ctx, psql.Select("count(*)").From("projects").Where(sq.Eq{"tenant_id": tenantID}))
}
