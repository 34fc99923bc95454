package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"taskhub.io/internal/model"
)

var taskColumns = []string{
	"k.id", "k.project_id", "k.tenant_id", "k.title", "k.description", "k.status", "k.priority",
	"k.assigned_to", "k.due_date", "k.created_by", "k.created_at", "k.updated_at",
	"a.full_name", "a.email",
}

const taskOrder = "case k.priority when 'high' then 3 when 'medium' then 2 else 1 end desc"

func taskSelect() sq.SelectBuilder {
	return psql.Select(taskColumns...).From("tasks k").LeftJoin("users a on a.id = k.assigned_to")
}

func scanTask(row scanner) (model.Task, error) {
	var (
		tk                     model.Task
		assignedTo, createdBy  sql.NullString
		assigneeName, assignee sql.NullString
		due                    sql.NullTime
	)
	if err := row.Scan(&tk.ID, &tk.ProjectID, &tk.TenantID, &tk.Title, &tk.Description, &tk.Status, &tk.Priority,
		&assignedTo, &due, &createdBy, &tk.CreatedAt, &tk.UpdatedAt, &assigneeName, &assignee); err != nil {
		return model.Task{}, mapErr(err)
	}
	tk.CreatedBy = createdBy.String
	if due.Valid {
		d := due.Time
		tk.DueDate = &d
	}
	if assignedTo.Valid {
		tk.AssignedTo = assignedTo.String
		tk.Assignee = &model.UserSummary{ID: assignedTo.String, FullName: assigneeName.String, Email: assignee.String}
	}
	return tk, nil
}

func (t *tx) scanTasks(ctx context.Context, b sq.SelectBuilder) ([]model.Task, error) {
	rows, err := t.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		tk, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tk)
	}
	return out, rows.Err()
}

func (t *tx) InsertTask(ctx context.Context, tk model.Task) error {
	_, err := t.exec(ctx, psql.Insert("tasks").
		Columns("id", "project_id", "tenant_id", "title", "description", "status", "priority",
			"assigned_to", "due_date", "created_by", "created_at", "updated_at").
		Values(tk.ID, tk.ProjectID, tk.TenantID, tk.Title, tk.Description, tk.Status, tk.Priority,
			nullIfEmpty(tk.AssignedTo), nullTime(tk.DueDate), nullIfEmpty(tk.CreatedBy), tk.CreatedAt, tk.UpdatedAt))
	return err
}

func (t *tx) TaskByID(ctx context.Context, id string) (model.Task, error) {
	row, err := t.queryRow(ctx, taskSelect().Where(sq.Eq{"k.id": id}))
	if err != nil {
		return model.Task{}, err
	}
	return scanTask(row)
}

func (t *tx) UpdateTask(ctx context.Context, id string, upd model.TaskUpdate, at time.Time) (model.Task, error) {
	set := map[string]any{"updated_at": at}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.Priority != nil {
		set["priority"] = *upd.Priority
	}
	if upd.AssignedTo != nil {
		set["assigned_to"] = nullIfEmpty(*upd.AssignedTo)
	}
	switch {
	case upd.ClearDueDate:
		set["due_date"] = nil
	case upd.DueDate != nil:
		set["due_date"] = *upd.DueDate
	}
	if err := t.execOne(ctx, psql.Update("tasks").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
		return model.Task{}, err
	}
	return t.TaskByID(ctx, id)
}

func (t *tx) DeleteTask(ctx context.Context, id string) error {
	return t.execOne(ctx, psql.Delete("tasks").Where(sq.Eq{"id": id}))
}

func (t *tx) ListTasks(ctx context.Context, projectID string, f model.TaskFilter, p model.Page) ([]model.Task, int, error) {
	where := sq.And{sq.Eq{"k.project_id": projectID}}
	if f.Status != "" {
		where = append(where, sq.Eq{"k.status": f.Status})
	}
	if f.Priority != "" {
		where = append(where, sq.Eq{"k.priority": f.Priority})
	}
	if f.AssignedTo != "" {
		where = append(where, sq.Eq{"k.assigned_to": f.AssignedTo})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, sq.Expr("k.title ilike ?", containsPattern(s)))
	}

	total, err := t.count(ctx, psql.Select("count(*)").From("tasks k").Where(where))
	if err != nil {
		return nil, 0, err
	}
	items, err := t.scanTasks(ctx, paged(taskSelect().Where(where).
		OrderBy(taskOrder, "k.due_date asc nulls last", "k.created_at desc", "k.id"), p))
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
