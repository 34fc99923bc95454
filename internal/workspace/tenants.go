package workspace

import (
	"context"

	"taskhub.io/internal/audit"
	"taskhub.io/internal/auth"
	"taskhub.io/internal/authz"
	"taskhub.io/internal/model"
	"taskhub.io/internal/store"
	"taskhub.io/internal/tenant"
)

func tenantResource(id string) authz.Resource {
	return authz.Resource{Type: authz.Tenant, ID: id, TenantID: id}
}

// GetTenant returns a tenant with its totals.
func (s *Service) GetTenant(ctx context.Context, p auth.Principal, id string) (model.TenantDetails, error) {
	if err := s.authorize(p, authz.Read, tenantResource(id)); err != nil {
		return model.TenantDetails{}, err
	}
	if err := knownID(id); err != nil {
		return model.TenantDetails{}, err
	}
	return s.dir.GetTenant(ctx, id)
}

// UpdateTenant applies a partial update. Tenant admins may only rename.
func (s *Service) UpdateTenant(ctx context.Context, p auth.Principal, id string, patch model.TenantUpdate) (model.Tenant, error) {
	patch, err := tenant.ValidateUpdate(patch)
	if err != nil {
		return model.Tenant{}, err
	}
	if err := s.authorize(p, authz.Update, tenantResource(id), patch.Fields()...); err != nil {
		return model.Tenant{}, err
	}
	if err := knownID(id); err != nil {
		return model.Tenant{}, err
	}
	var out model.Tenant
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = s.dir.Apply(ctx, tx, id, patch)
		return err
	})
	if err != nil {
		return model.Tenant{}, err
	}
	s.record(ctx, p, id, audit.ActionUpdateTenant, "tenant", id)
	return out, nil
}

// ListTenants pages through all tenants. Platform administrators only.
func (s *Service) ListTenants(ctx context.Context, p auth.Principal, f model.TenantFilter, page model.Page) (model.PageResult[model.TenantDetails], error) {
	if err := s.authorize(p, authz.Read, authz.Resource{Type: authz.Tenant}); err != nil {
		return model.PageResult[model.TenantDetails]{}, err
	}
	return s.dir.ListTenants(ctx, f, page)
}
