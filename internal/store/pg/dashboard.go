package pg

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"taskhub.io/internal/model"
)

func (t *tx) DashboardStats(ctx context.Context, tenantID string) (model.DashboardStats, error) {
	row, err := t.queryRow(ctx, psql.Select(
		"(select count(*) from projects p where p.tenant_id = n.id)",
		"count(k.id)",
		"count(k.id) filter (where k.status = 'completed')",
		"count(k.id) filter (where k.status <> 'completed')",
	).From("tenants n").LeftJoin("tasks k on k.tenant_id = n.id").
		Where(sq.Eq{"n.id": tenantID}).GroupBy("n.id"))
	if err != nil {
		return model.DashboardStats{}, err
	}
	var s model.DashboardStats
	if err := row.Scan(&s.TotalProjects, &s.TotalTasks, &s.CompletedTasks, &s.PendingTasks); err != nil {
		return model.DashboardStats{}, mapErr(err)
	}
	return s, nil
}

func (t *tx) RecentProjects(ctx context.Context, tenantID string, limit int) ([]model.Project, error) {
	return t.scanProjects(ctx, projectSelect().Where(sq.Eq{"p.tenant_id": tenantID}).
		OrderBy("p.created_at desc", "p.id desc").Limit(uint64(limit)))
}

func (t *tx) TasksAssignedTo(ctx context.Context, userID string, limit int) ([]model.Task, error) {
	return t.scanTasks(ctx, taskSelect().Where(sq.Eq{"k.assigned_to": userID}).
		OrderBy("k.created_at desc", "k.id desc").Limit(uint64(limit)))
}
