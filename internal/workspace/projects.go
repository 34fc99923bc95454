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

const maxDescriptionLength = 10000

type NewProject struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Status      model.ProjectStatus `json:"status"`
}

// CreateProject adds a project to the principal's tenant, consuming one
// project slot.
func (s *Service) CreateProject(ctx context.Context, p auth.Principal, in NewProject) (model.Project, error) {
	if err := s.authorize(p, authz.Create, authz.Resource{Type: authz.Project, TenantID: p.TenantID}); err != nil {
		return model.Project{}, err
	}
	name, err := requireText("name", in.Name, maxNameLength)
	if err != nil {
		return model.Project{}, err
	}
	if len(in.Description) > maxDescriptionLength {
		return model.Project{}, fmt.Errorf("%w: description is too long", model.ErrValidation)
	}
	status := in.Status
	if status == "" {
		status = model.ProjectActive
	}
	if !status.Valid() {
		return model.Project{}, fmt.Errorf("%w: unknown project status %q", model.ErrValidation, status)
	}

	now := s.timestamp()
	pr := model.Project{
		ID:          ids.Entity(),
		TenantID:    p.TenantID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Status:      status,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := s.quota.ReserveProjectSlot(ctx, tx, p.TenantID)
		if err != nil {
			return err
		}
		if err := d.Err(); err != nil {
			return err
		}
		if err := tx.InsertProject(ctx, pr); err != nil {
			return err
		}
		pr, err = tx.ProjectByID(ctx, pr.ID)
		return err
	})
	if err != nil {
		return model.Project{}, err
	}
	s.record(ctx, p, p.TenantID, audit.ActionCreateProject, "project", pr.ID)
	return pr, nil
}

// ListProjects pages through the projects of the principal's tenant.
func (s *Service) ListProjects(ctx context.Context, p auth.Principal, f model.ProjectFilter, page model.Page) (model.PageResult[model.Project], error) {
	if err := s.authorize(p, authz.Read, authz.Resource{Type: authz.Project, TenantID: p.TenantID}); err != nil {
		return model.PageResult[model.Project]{}, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return model.PageResult[model.Project]{}, fmt.Errorf("%w: unknown project status %q", model.ErrValidation, f.Status)
	}
	f.Search = strings.TrimSpace(f.Search)
	page = page.Normalize(model.DefaultProjectPageSize)

	var (
		items []model.Project
		total int
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		items, total, err = tx.ListProjects(ctx, p.TenantID, f, page)
		return err
	})
	if err != nil {
		return model.PageResult[model.Project]{}, err
	}
	return model.NewPageResult(items, total, page), nil
}

func (s *Service) loadProject(ctx context.Context, p auth.Principal, op authz.Op, id string, fields ...string) (model.Project, error) {
	if err := knownID(id); err != nil {
		return model.Project{}, err
	}
	var pr model.Project
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		pr, err = tx.ProjectByID(ctx, id)
		return err
	})
	if err != nil {
		return model.Project{}, err
	}
	if err := s.authorize(p, op, projectResource(pr), fields...); err != nil {
		return model.Project{}, err
	}
	return pr, nil
}

func (s *Service) GetProject(ctx context.Context, p auth.Principal, id string) (model.Project, error) {
	return s.loadProject(ctx, p, authz.Read, id)
}

// UpdateProject applies a partial update. Members may only update projects
// they created.
func (s *Service) UpdateProject(ctx context.Context, p auth.Principal, id string, patch model.ProjectUpdate) (model.Project, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return model.Project{}, fmt.Errorf("%w: no fields to update", model.ErrValidation)
	}
	if patch.Name != nil {
		name, err := requireText("name", *patch.Name, maxNameLength)
		if err != nil {
			return model.Project{}, err
		}
		patch.Name = &name
	}
	if patch.Description != nil && len(*patch.Description) > maxDescriptionLength {
		return model.Project{}, fmt.Errorf("%w: description is too long", model.ErrValidation)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return model.Project{}, fmt.Errorf("%w: unknown project status %q", model.ErrValidation, *patch.Status)
	}
	if _, err := s.loadProject(ctx, p, authz.Update, id, fields...); err != nil {
		return model.Project{}, err
	}

	var out model.Project
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.UpdateProject(ctx, id, patch, s.timestamp())
		return err
	})
	if err != nil {
		return model.Project{}, err
	}
	s.record(ctx, p, out.TenantID, audit.ActionUpdateProject, "project", id)
	return out, nil
}

// DeleteProject removes a project together with its tasks.
func (s *Service) DeleteProject(ctx context.Context, p auth.Principal, id string) error {
	pr, err := s.loadProject(ctx, p, authz.Delete, id)
	if err != nil {
		return err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteProject(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, p, pr.TenantID, audit.ActionDeleteProject, "project", id)
	return nil
}
