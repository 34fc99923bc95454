package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskhub.io/internal/audit"
	"taskhub.io/internal/auth"
	"taskhub.io/internal/authz"
	"taskhub.io/internal/ids"
	"taskhub.io/internal/model"
	"taskhub.io/internal/store"
)

type NewTask struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      model.TaskStatus `json:"status"`
	Priority    model.Priority   `json:"priority"`
	AssignedTo  string           `json:"assigned_to"`
	DueDate     *time.Time       `json:"due_date"`
}

func (in NewTask) validate() (NewTask, error) {
	title, err := requireText("title", in.Title, maxTitleLength)
	if err != nil {
		return in, err
	}
	in.Title = title
	in.Description = strings.TrimSpace(in.Description)
	if len(in.Description) > maxDescriptionLength {
		return in, fmt.Errorf("%w: description is too long", model.ErrValidation)
	}
	if in.Status == "" {
		in.Status = model.TaskTodo
	}
	if !in.Status.Valid() {
		return in, fmt.Errorf("%w: unknown task status %q", model.ErrValidation, in.Status)
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !in.Priority.Valid() {
		return in, fmt.Errorf("%w: unknown priority %q", model.ErrValidation, in.Priority)
	}
	in.AssignedTo = strings.TrimSpace(in.AssignedTo)
	return in, nil
}

// checkAssignee resolves userID inside tenantID. Any miss, including a user
// of another tenant, is reported as ErrInvalidAssignee.
func checkAssignee(ctx context.Context, tx store.Users, tenantID, userID string) error {
	if !ids.IsEntity(userID) {
		return model.ErrInvalidAssignee
	}
	u, err := tx.UserByID(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return model.ErrInvalidAssignee
	}
	if err != nil {
		return err
	}
	if u.TenantID == "" || u.TenantID != tenantID {
		return model.ErrInvalidAssignee
	}
	return nil
}

// projectFor loads a project the principal may read. Projects of other
// tenants are reported as missing.
func (s *Service) projectFor(ctx context.Context, p auth.Principal, id string) (model.Project, error) {
	return s.loadProject(ctx, p, authz.Read, id)
}

// CreateTask adds a task to a project. Any member of the project's tenant may
// create tasks.
func (s *Service) CreateTask(ctx context.Context, p auth.Principal, projectID string, in NewTask) (model.Task, error) {
	in, err := in.validate()
	if err != nil {
		return model.Task{}, err
	}
	pr, err := s.projectFor(ctx, p, projectID)
	if err != nil {
		return model.Task{}, err
	}
	if err := s.authorize(p, authz.Create, authz.Resource{Type: authz.Task, TenantID: pr.TenantID}); err != nil {
		return model.Task{}, err
	}

	now := s.timestamp()
	tk := model.Task{
		ID:          ids.Entity(),
		ProjectID:   pr.ID,
		TenantID:    pr.TenantID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		AssignedTo:  in.AssignedTo,
		DueDate:     in.DueDate,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if tk.AssignedTo != "" {
			if err := checkAssignee(ctx, tx, tk.TenantID, tk.AssignedTo); err != nil {
				return err
			}
		}
		if err := tx.InsertTask(ctx, tk); err != nil {
			return err
		}
		var err error
		tk, err = tx.TaskByID(ctx, tk.ID)
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	s.record(ctx, p, tk.TenantID, audit.ActionCreateTask, "task", tk.ID)
	return tk, nil
}

// ListTasks pages through the tasks of a project.
func (s *Service) ListTasks(ctx context.Context, p auth.Principal, projectID string, f model.TaskFilter, page model.Page) (model.PageResult[model.Task], error) {
	if f.Status != "" && !f.Status.Valid() {
		return model.PageResult[model.Task]{}, fmt.Errorf("%w: unknown task status %q", model.ErrValidation, f.Status)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return model.PageResult[model.Task]{}, fmt.Errorf("%w: unknown priority %q", model.ErrValidation, f.Priority)
	}
	f.AssignedTo = strings.TrimSpace(f.AssignedTo)
	if f.AssignedTo != "" && !ids.IsEntity(f.AssignedTo) {
		return model.PageResult[model.Task]{}, fmt.Errorf("%w: assigned_to is not a valid user id", model.ErrValidation)
	}
	f.Search = strings.TrimSpace(f.Search)
	page = page.Normalize(model.DefaultTaskPageSize)

	pr, err := s.projectFor(ctx, p, projectID)
	if err != nil {
		return model.PageResult[model.Task]{}, err
	}
	if err := s.authorize(p, authz.Read, authz.Resource{Type: authz.Task, TenantID: pr.TenantID}); err != nil {
		return model.PageResult[model.Task]{}, err
	}

	var (
		items []model.Task
		total int
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		items, total, err = tx.ListTasks(ctx, pr.ID, f, page)
		return err
	})
	if err != nil {
		return model.PageResult[model.Task]{}, err
	}
	return model.NewPageResult(items, total, page), nil
}

func (s *Service) loadTask(ctx context.Context, p auth.Principal, op authz.Op, id string, fields ...string) (model.Task, error) {
	if err := knownID(id); err != nil {
		return model.Task{}, err
	}
	var tk model.Task
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		tk, err = tx.TaskByID(ctx, id)
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	if err := s.authorize(p, op, taskResource(tk), fields...); err != nil {
		return model.Task{}, err
	}
	return tk, nil
}

func (s *Service) GetTask(ctx context.Context, p auth.Principal, id string) (model.Task, error) {
	return s.loadTask(ctx, p, authz.Read, id)
}

// UpdateTaskStatus moves a task to status. It is gated like any other field
// update.
func (s *Service) UpdateTaskStatus(ctx context.Context, p auth.Principal, id string, status model.TaskStatus) (model.Task, error) {
	if !status.Valid() {
		return model.Task{}, fmt.Errorf("%w: unknown task status %q", model.ErrValidation, status)
	}
	return s.updateTask(ctx, p, id, model.TaskUpdate{Status: &status}, audit.ActionUpdateTaskStatus)
}

// UpdateTask applies a partial update. A new assignee must belong to the
// task's tenant.
func (s *Service) UpdateTask(ctx context.Context, p auth.Principal, id string, patch model.TaskUpdate) (model.Task, error) {
	if len(patch.Fields()) == 0 {
		return model.Task{}, fmt.Errorf("%w: no fields to update", model.ErrValidation)
	}
	if patch.Title != nil {
		title, err := requireText("title", *patch.Title, maxTitleLength)
		if err != nil {
			return model.Task{}, err
		}
		patch.Title = &title
	}
	if patch.Description != nil && len(*patch.Description) > maxDescriptionLength {
		return model.Task{}, fmt.Errorf("%w: description is too long", model.ErrValidation)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return model.Task{}, fmt.Errorf("%w: unknown task status %q", model.ErrValidation, *patch.Status)
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return model.Task{}, fmt.Errorf("%w: unknown priority %q", model.ErrValidation, *patch.Priority)
	}
	if patch.DueDate != nil && patch.ClearDueDate {
		return model.Task{}, fmt.Errorf("%w: due_date cannot be set and cleared at once", model.ErrValidation)
	}
	if patch.AssignedTo != nil {
		a := strings.TrimSpace(*patch.AssignedTo)
		patch.AssignedTo = &a
	}
	return s.updateTask(ctx, p, id, patch, audit.ActionUpdateTask)
}

func (s *Service) updateTask(ctx context.Context, p auth.Principal, id string, patch model.TaskUpdate, action string) (model.Task, error) {
	current, err := s.loadTask(ctx, p, authz.Update, id, patch.Fields()...)
	if err != nil {
		return model.Task{}, err
	}
	var out model.Task
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if patch.AssignedTo != nil && *patch.AssignedTo != "" {
			if err := checkAssignee(ctx, tx, current.TenantID, *patch.AssignedTo); err != nil {
				return err
			}
		}
		var err error
		out, err = tx.UpdateTask(ctx, id, patch, s.timestamp())
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	s.record(ctx, p, out.TenantID, action, "task", id)
	return out, nil
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, p auth.Principal, id string) error {
	tk, err := s.loadTask(ctx, p, authz.Delete, id)
	if err != nil {
		return err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteTask(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, p, tk.TenantID, audit.ActionDeleteTask, "task", id)
	return nil
}
