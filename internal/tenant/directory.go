// Package tenant owns tenant records: subdomain uniqueness, lifecycle status
// and the quota ceilings derived from the subscription plan.
package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"taskhub.io/internal/ids"
	"taskhub.io/internal/model"
	"taskhub.io/internal/store"
)

const maxNameLength = 255

var subdomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// Directory manages tenants. Callers authorize before invoking it.
type Directory struct {
	store store.Store
	now   func() time.Time
}

// Option configures a Directory.
type Option func(*Directory)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(d *Directory) {
		if fn != nil {
			d.now = fn
		}
	}
}

func NewDirectory(st store.Store, opts ...Option) *Directory {
	d := &Directory{store: st, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NormalizeSubdomain trims and lower-cases a subdomain.
func NormalizeSubdomain(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Prepare validates the input and builds a tenant record with the plan's
// default ceilings. It performs no store access. An empty plan means free.
func (d *Directory) Prepare(name, subdomain string, plan model.Plan) (model.Tenant, error) {
	name = strings.TrimSpace(name)
	subdomain = NormalizeSubdomain(subdomain)
	if plan == "" {
		plan = model.PlanFree
	}
	if name == "" {
		return model.Tenant{}, fmt.Errorf("%w: tenant name is required", model.ErrValidation)
	}
	if len(name) > maxNameLength {
		return model.Tenant{}, fmt.Errorf("%w: tenant name is too long", model.ErrValidation)
	}
	if !subdomainPattern.MatchString(subdomain) {
		return model.Tenant{}, fmt.Errorf("%w: subdomain must be 3-63 lowercase letters, digits or hyphens", model.ErrValidation)
	}
	limits, ok := LimitsFor(plan)
	if !ok {
		return model.Tenant{}, fmt.Errorf("%w: unknown plan %q", model.ErrValidation, plan)
	}
	now := d.now().UTC()
	return model.Tenant{
		ID:          ids.Entity(),
		Name:        name,
		Subdomain:   subdomain,
		Status:      model.TenantActive,
		Plan:        plan,
		MaxUsers:    limits.MaxUsers,
		MaxProjects: limits.MaxProjects,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Insert persists a prepared tenant inside tx. The subdomain is re-checked in
// the same transaction; the store's unique constraint catches a concurrent
// insert that slips past the check.
func (d *Directory) Insert(ctx context.Context, tx store.Tenants, t model.Tenant) error {
	taken, err := tx.SubdomainTaken(ctx, t.Subdomain)
	if err != nil {
		return err
	}
	if taken {
		return model.ErrDuplicateSubdomain
	}
	return tx.InsertTenant(ctx, t)
}

// CreateTenant registers a tenant without an administrator.
func (d *Directory) CreateTenant(ctx context.Context, name, subdomain string, plan model.Plan) (model.Tenant, error) {
	t, err := d.Prepare(name, subdomain, plan)
	if err != nil {
		return model.Tenant{}, err
	}
	err = d.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return d.Insert(ctx, tx, t)
	})
	if err != nil {
		return model.Tenant{}, err
	}
	return t, nil
}

// GetTenant returns a tenant with its resource totals.
func (d *Directory) GetTenant(ctx context.Context, id string) (model.TenantDetails, error) {
	var out model.TenantDetails
	err := d.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = d.Details(ctx, tx, id)
		return err
	})
	return out, err
}

// Details reads a tenant and its totals inside tx.
func (d *Directory) Details(ctx context.Context, tx store.Tenants, id string) (model.TenantDetails, error) {
	t, err := tx.TenantByID(ctx, id)
	if err != nil {
		return model.TenantDetails{}, err
	}
	stats, err := tx.TenantStats(ctx, id)
	if err != nil {
		return model.TenantDetails{}, err
	}
	return model.TenantDetails{Tenant: t, Stats: stats}, nil
}

// ValidateUpdate checks the shape of a patch without touching the store.
func ValidateUpdate(patch model.TenantUpdate) (model.TenantUpdate, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return patch, fmt.Errorf("%w: tenant name cannot be empty", model.ErrValidation)
		}
		if len(name) > maxNameLength {
			return patch, fmt.Errorf("%w: tenant name is too long", model.ErrValidation)
		}
		patch.Name = &name
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return patch, fmt.Errorf("%w: unknown status %q", model.ErrValidation, *patch.Status)
	}
	if patch.Plan != nil && !patch.Plan.Valid() {
		return patch, fmt.Errorf("%w: unknown plan %q", model.ErrValidation, *patch.Plan)
	}
	if patch.MaxUsers != nil && *patch.MaxUsers < 1 {
		return patch, fmt.Errorf("%w: max_users must be positive", model.ErrValidation)
	}
	if patch.MaxProjects != nil && *patch.MaxProjects < 1 {
		return patch, fmt.Errorf("%w: max_projects must be positive", model.ErrValidation)
	}
	return patch, nil
}

// UpdateTenant applies a partial update. Absent fields are left unchanged.
func (d *Directory) UpdateTenant(ctx context.Context, id string, patch model.TenantUpdate) (model.Tenant, error) {
	patch, err := ValidateUpdate(patch)
	if err != nil {
		return model.Tenant{}, err
	}
	var out model.Tenant
	err = d.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = d.Apply(ctx, tx, id, patch)
		return err
	})
	return out, err
}

// Apply runs a validated patch inside tx. The tenant row is locked so that a
// lowered ceiling is compared against counts no concurrent creation can move.
// Changing the plan without explicit ceilings adopts the plan's defaults.
func (d *Directory) Apply(ctx context.Context, tx store.Tx, id string, patch model.TenantUpdate) (model.Tenant, error) {
	current, err := tx.LockTenant(ctx, id)
	if err != nil {
		return model.Tenant{}, err
	}
	if patch.Plan != nil && *patch.Plan != current.Plan {
		limits, _ := LimitsFor(*patch.Plan)
		if patch.MaxUsers == nil {
			patch.MaxUsers = &limits.MaxUsers
		}
		if patch.MaxProjects == nil {
			patch.MaxProjects = &limits.MaxProjects
		}
	}
	if patch.MaxUsers != nil && *patch.MaxUsers < current.MaxUsers {
		n, err := tx.CountActiveUsers(ctx, id)
		if err != nil {
			return model.Tenant{}, err
		}
		if *patch.MaxUsers < n {
			return model.Tenant{}, fmt.Errorf("%w: max_users %d is below the %d active users", model.ErrValidation, *patch.MaxUsers, n)
		}
	}
	if patch.MaxProjects != nil && *patch.MaxProjects < current.MaxProjects {
		n, err := tx.CountProjects(ctx, id)
		if err != nil {
			return model.Tenant{}, err
		}
		if *patch.MaxProjects < n {
			return model.Tenant{}, fmt.Errorf("%w: max_projects %d is below the %d existing projects", model.ErrValidation, *patch.MaxProjects, n)
		}
	}
	if len(patch.Fields()) == 0 {
		return current, nil
	}
	return tx.UpdateTenant(ctx, id, patch, d.now().UTC())
}

// ListTenants returns one page of tenants, newest first.
func (d *Directory) ListTenants(ctx context.Context, f model.TenantFilter, p model.Page) (model.PageResult[model.TenantDetails], error) {
	if f.Status != "" && !f.Status.Valid() {
		return model.PageResult[model.TenantDetails]{}, fmt.Errorf("%w: unknown status %q", model.ErrValidation, f.Status)
	}
	if f.Plan != "" && !f.Plan.Valid() {
		return model.PageResult[model.TenantDetails]{}, fmt.Errorf("%w: unknown plan %q", model.ErrValidation, f.Plan)
	}
	p = p.Normalize(model.DefaultTenantPageSize)
	var (
		items []model.TenantDetails
		total int
	)
	err := d.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		items, total, err = tx.ListTenants(ctx, f, p)
		return err
	})
	if err != nil {
		return model.PageResult[model.TenantDetails]{}, err
	}
	return model.NewPageResult(items, total, p), nil
}
