package pg

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"taskhub.io/internal/model"
)

var tenantColumns = []string{
	"t.id", "t.name", "t.subdomain", "t.status", "t.subscription_plan",
	"t.max_users", "t.max_projects", "t.created_at", "t.updated_at",
}

const (
	tenantUserCount    = "(select count(*) from users u where u.tenant_id = t.id)"
	tenantProjectCount = "(select count(*) from projects p where p.tenant_id = t.id)"
	tenantTaskCount    = "(select count(*) from tasks k where k.tenant_id = t.id)"
)

func scanTenant(row scanner, extra ...any) (model.Tenant, error) {
	var tn model.Tenant
	dest := append([]any{
		&tn.ID, &tn.Name, &tn.Subdomain, &tn.Status, &tn.Plan,
		&tn.MaxUsers, &tn.MaxProjects, &tn.CreatedAt, &tn.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Tenant{}, mapErr(err)
	}
	return tn, nil
}

func (t *tx) InsertTenant(ctx context.Context, tn model.Tenant) error {
	_, err := t.exec(ctx, psql.Insert("tenants").
		Columns("id", "name", "subdomain", "status", "subscription_plan", "max_users", "max_projects", "created_at", "updated_at").
		Values(tn.ID, tn.Name, tn.Subdomain, tn.Status, tn.Plan, tn.MaxUsers, tn.MaxProjects, tn.CreatedAt, tn.UpdatedAt))
	return err
}

func (t *tx) tenantWhere(ctx context.Context, pred any, suffix string) (model.Tenant, error) {
	b := psql.Select(tenantColumns...).From("tenants t").Where(pred)
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	row, err := t.queryRow(ctx, b)
	if err != nil {
		return model.Tenant{}, err
	}
	return scanTenant(row)
}

func (t *tx) TenantByID(ctx context.Context, id string) (model.Tenant, error) {
	return t.tenantWhere(ctx, sq.Eq{"t.id": id}, "")
}

func (t *tx) TenantBySubdomain(ctx context.Context, subdomain string) (model.Tenant, error) {
	return t.tenantWhere(ctx, sq.Eq{"t.subdomain": strings.ToLower(subdomain)}, "")
}

func (t *tx) SubdomainTaken(ctx context.Context, subdomain string) (bool, error) {
	return t.exists(ctx, psql.Select("1").From("tenants").Where(sq.Eq{"subdomain": strings.ToLower(subdomain)}))
}

func (t *tx) LockTenant(ctx context.Context, id string) (model.Tenant, error) {
	return t.tenantWhere(ctx, sq.Eq{"t.id": id}, "for update")
}

func (t *tx) UpdateTenant(ctx context.Context, id string, upd model.TenantUpdate, at time.Time) (model.Tenant, error) {
	set := map[string]any{"updated_at": at}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.Plan != nil {
		set["subscription_plan"] = *upd.Plan
	}
	if upd.MaxUsers != nil {
		set["max_users"] = *upd.MaxUsers
	}
	if upd.MaxProjects != nil {
		set["max_projects"] = *upd.MaxProjects
	}
	if err := t.execOne(ctx, psql.Update("tenants").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
		return model.Tenant{}, err
	}
	return t.TenantByID(ctx, id)
}

func (t *tx) ListTenants(ctx context.Context, f model.TenantFilter, p model.Page) ([]model.TenantDetails, int, error) {
	where := sq.And{}
	if f.Status != "" {
		where = append(where, sq.Eq{"t.status": f.Status})
	}
	if f.Plan != "" {
		where = append(where, sq.Eq{"t.subscription_plan": f.Plan})
	}

	total, err := t.count(ctx, psql.Select("count(*)").From("tenants t").Where(where))
	if err != nil {
		return nil, 0, err
	}

	cols := append(append([]string{}, tenantColumns...), tenantUserCount, tenantProjectCount, tenantTaskCount)
	rows, err := t.query(ctx, paged(psql.Select(cols...).From("tenants t").Where(where).
		OrderBy("t.created_at desc", "t.id desc"), p))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.TenantDetails
	for rows.Next() {
		var d model.TenantDetails
		tn, err := scanTenant(rows, &d.Stats.TotalUsers, &d.Stats.TotalProjects, &d.Stats.TotalTasks)
		if err != nil {
			return nil, 0, err
		}
		d.Tenant = tn
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (t *tx) TenantStats(ctx context.Context, id string) (model.TenantStats, error) {
	row, err := t.queryRow(ctx, psql.Select(tenantUserCount, tenantProjectCount, tenantTaskCount).
		From("tenants t").Where(sq.Eq{"t.id": id}))
	if err != nil {
		return model.TenantStats{}, err
	}
	var s model.TenantStats
	if err := row.Scan(&s.TotalUsers, &s.TotalProjects, &s.TotalTasks); err != nil {
		return model.TenantStats{}, mapErr(err)
	}
	return s, nil
}
