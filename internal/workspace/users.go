package workspace

import (
	"context"
	"fmt"
	"strings"

	"taskhub.io/internal/audit"
	"taskhub.io/internal/auth"
	"taskhub.io/internal/authz"
	"taskhub.io/internal/ids"
	"taskhub.io/internal/model"
	"taskhub.io/internal/store"
)

const maxNameLength = 255

// NewUser is the input of CreateUser.
type NewUser struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	FullName string     `json:"full_name"`
	Role     model.Role `json:"role"`
}

// authorizeUsers gates the user collection of tenantID. Foreign tenants are
// addressed by id, so they are reported as missing.
func (s *Service) authorizeUsers(p auth.Principal, op authz.Op, tenantID string) error {
	if err := s.authorize(p, authz.Read, tenantResource(tenantID)); err != nil {
		return err
	}
	if err := knownID(tenantID); err != nil {
		return err
	}
	return s.authorize(p, op, authz.Resource{Type: authz.User, TenantID: tenantID})
}

// CreateUser adds a user to tenantID, consuming one user slot.
func (s *Service) CreateUser(ctx context.Context, p auth.Principal, tenantID string, in NewUser) (model.User, error) {
	if err := s.authorizeUsers(p, authz.Create, tenantID); err != nil {
		return model.User{}, err
	}
	email, err := auth.ValidateEmail(in.Email)
	if err != nil {
		return model.User{}, err
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return model.User{}, err
	}
	name, err := requireText("full_name", in.FullName, maxNameLength)
	if err != nil {
		return model.User{}, err
	}
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleTenantAdmin {
		return model.User{}, fmt.Errorf("%w: role must be user or tenant_admin", model.ErrValidation)
	}
	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, err
	}

	now := s.timestamp()
	u := model.User{
		ID:           ids.Entity(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: digest,
		FullName:     name,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := s.quota.ReserveUserSlot(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if err := d.Err(); err != nil {
			return err
		}
		taken, err := tx.EmailTaken(ctx, tenantID, email)
		if err != nil {
			return err
		}
		if taken {
			return model.ErrDuplicateEmail
		}
		return tx.InsertUser(ctx, u)
	})
	if err != nil {
		return model.User{}, err
	}
	s.record(ctx, p, tenantID, audit.ActionCreateUser, "user", u.ID)
	return u, nil
}

// ListUsers pages through the users of tenantID.
func (s *Service) ListUsers(ctx context.Context, p auth.Principal, tenantID string, f model.UserFilter, page model.Page) (model.PageResult[model.User], error) {
	if err := s.authorizeUsers(p, authz.Read, tenantID); err != nil {
		return model.PageResult[model.User]{}, err
	}
	if f.Role != "" && !f.Role.Valid() {
		return model.PageResult[model.User]{}, fmt.Errorf("%w: unknown role %q", model.ErrValidation, f.Role)
	}
	f.Search = strings.TrimSpace(f.Search)
	page = page.Normalize(model.DefaultUserPageSize)

	var (
		items []model.User
		total int
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.TenantByID(ctx, tenantID); err != nil {
			return err
		}
		var err error
		items, total, err = tx.ListUsers(ctx, tenantID, f, page)
		return err
	})
	if err != nil {
		return model.PageResult[model.User]{}, err
	}
	return model.NewPageResult(items, total, page), nil
}

func (s *Service) loadUser(ctx context.Context, p auth.Principal, op authz.Op, id string, fields ...string) (model.User, error) {
	if err := knownID(id); err != nil {
		return model.User{}, err
	}
	var u model.User
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.UserByID(ctx, id)
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	if err := s.authorize(p, op, userResource(u), fields...); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// GetUser returns a single user.
func (s *Service) GetUser(ctx context.Context, p auth.Principal, id string) (model.User, error) {
	return s.loadUser(ctx, p, authz.Read, id)
}

// UpdateUser applies a partial update. Reactivating a user consumes a slot.
func (s *Service) UpdateUser(ctx context.Context, p auth.Principal, id string, patch model.UserUpdate) (model.User, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return model.User{}, fmt.Errorf("%w: no fields to update", model.ErrValidation)
	}
	if patch.FullName != nil {
		name, err := requireText("full_name", *patch.FullName, maxNameLength)
		if err != nil {
			return model.User{}, err
		}
		patch.FullName = &name
	}
	if patch.Role != nil && *patch.Role != model.RoleUser && *patch.Role != model.RoleTenantAdmin {
		return model.User{}, fmt.Errorf("%w: role must be user or tenant_admin", model.ErrValidation)
	}
	current, err := s.loadUser(ctx, p, authz.Update, id, fields...)
	if err != nil {
		return model.User{}, err
	}

	var out model.User
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if patch.Active != nil && *patch.Active {
			// Re-read under the tenant lock; a concurrent update may have
			// reactivated the user already.
			d, err := s.quota.ReserveUserSlot(ctx, tx, current.TenantID)
			if err != nil {
				return err
			}
			u, err := tx.UserByID(ctx, id)
			if err != nil {
				return err
			}
			if !u.Active {
				if err := d.Err(); err != nil {
					return err
				}
			}
		}
		var err error
		out, err = tx.UpdateUser(ctx, id, patch, s.timestamp())
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	s.record(ctx, p, out.TenantID, audit.ActionUpdateUser, "user", id)
	return out, nil
}

// DeleteUser removes a user. Projects and tasks they created or were
// assigned to are kept and lose the reference.
func (s *Service) DeleteUser(ctx context.Context, p auth.Principal, id string) error {
	u, err := s.loadUser(ctx, p, authz.Delete, id)
	if err != nil {
		return err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, p, u.TenantID, audit.ActionDeleteUser, "user", id)
	return nil
}
