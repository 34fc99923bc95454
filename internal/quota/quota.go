// Package quota bounds how many users and projects a tenant may hold.
//
// Reservations must run in the same unit of work as the insert they guard:
// the ledger locks the tenant row before counting, so a concurrent creation
// for the same tenant waits until this transaction ends.
package quota

import (
	"context"
	"fmt"

	"taskhub.io/internal/model"
	"taskhub.io/internal/obs"
)

// Ledger is the transactional view the enforcer counts against.
type Ledger interface {
	LockTenant(ctx context.Context, id string) (model.Tenant, error)
	CountActiveUsers(ctx context.Context, tenantID string) (int, error)
	CountProjects(ctx context.Context, tenantID string) (int, error)
}

const (
	ResourceUser    = "user"
	ResourceProject = "project"
)

// Decision is the outcome of a reservation.
type Decision struct {
	Allowed  bool
	Resource string
	Used     int
	Limit    int
}

// Err returns ErrQuotaExceeded for a rejected reservation and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s limit of %d reached", model.ErrQuotaExceeded, d.Resource, d.Limit)
}

// Enforcer checks tenant ceilings. The zero value is ready to use.
type Enforcer struct{}

// ReserveUserSlot checks the active-user count against max_users. Errors are
// returned only for store failures; a full tenant yields a denied Decision.
func (Enforcer) ReserveUserSlot(ctx context.Context, l Ledger, tenantID string) (Decision, error) {
	t, err := l.LockTenant(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}
	n, err := l.CountActiveUsers(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}
	return decide(ResourceUser, n, t.MaxUsers), nil
}

// ReserveProjectSlot checks the project count against max_projects.
func (Enforcer) ReserveProjectSlot(ctx context.Context, l Ledger, tenantID string) (Decision, error) {
	t, err := l.LockTenant(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}
	n, err := l.CountProjects(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}
	return decide(ResourceProject, n, t.MaxProjects), nil
}

func decide(resource string, used, limit int) Decision {
	d := Decision{Allowed: used < limit, Resource: resource, Used: used, Limit: limit}
	if !d.Allowed {
		obs.QuotaRejected(resource)
	}
	return d
}
