// Package memory is an in-process store. Units of work are serialized behind a
// single lock and applied to a private copy of the state that replaces the
// shared state only on commit.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"taskhub.io/internal/model"
	"taskhub.io/internal/store"
)

type state struct {
	tenants  map[string]model.Tenant
	users    map[string]model.User
	projects map[string]model.Project
	tasks    map[string]model.Task
}

func newState() *state {
	return &state{
		tenants:  map[string]model.Tenant{},
		users:    map[string]model.User{},
		projects: map[string]model.Project{},
		tasks:    map[string]model.Task{},
	}
}

func (s *state) clone() *state {
	c := &state{
		tenants:  make(map[string]model.Tenant, len(s.tenants)),
		users:    make(map[string]model.User, len(s.users)),
		projects: make(map[string]model.Project, len(s.projects)),
		tasks:    make(map[string]model.Task, len(s.tasks)),
	}
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	return c
}

// Store implements store.Store and store.AuditSink in memory.
type Store struct {
	mu    sync.Mutex
	state *state

	auditMu  sync.Mutex
	audit    []model.AuditEntry
	auditErr error
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.AuditSink = (*Store)(nil)
)

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) AppendAudit(_ context.Context, entry model.AuditEntry) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	if s.auditErr != nil {
		return s.auditErr
	}
	s.audit = append(s.audit, entry)
	return nil
}

// AuditEntries returns a copy of the appended audit rows.
func (s *Store) AuditEntries() []model.AuditEntry {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	out := make([]model.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// FailAudit makes subsequent audit appends return err. Pass nil to recover.
func (s *Store) FailAudit(err error) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.auditErr = err
}

type tx struct {
	st *state
}

// --- tenants ---

func (t *tx) InsertTenant(_ context.Context, tn model.Tenant) error {
	for _, existing := range t.st.tenants {
		if strings.EqualFold(existing.Subdomain, tn.Subdomain) {
			return model.ErrDuplicateSubdomain
		}
	}
	t.st.tenants[tn.ID] = tn
	return nil
}

func (t *tx) TenantByID(_ context.Context, id string) (model.Tenant, error) {
	tn, ok := t.st.tenants[id]
	if !ok {
		return model.Tenant{}, model.ErrNotFound
	}
	return tn, nil
}

func (t *tx) TenantBySubdomain(_ context.Context, subdomain string) (model.Tenant, error) {
	for _, tn := range t.st.tenants {
		if strings.EqualFold(tn.Subdomain, subdomain) {
			return tn, nil
		}
	}
	return model.Tenant{}, model.ErrNotFound
}

func (t *tx) SubdomainTaken(ctx context.Context, subdomain string) (bool, error) {
	_, err := t.TenantBySubdomain(ctx, subdomain)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// LockTenant needs no extra work: the whole unit of work already holds the store lock.
func (t *tx) LockTenant(ctx context.Context, id string) (model.Tenant, error) {
	return t.TenantByID(ctx, id)
}

func (t *tx) UpdateTenant(_ context.Context, id string, upd model.TenantUpdate, at time.Time) (model.Tenant, error) {
	tn, ok := t.st.tenants[id]
	if !ok {
		return model.Tenant{}, model.ErrNotFound
	}
	if upd.Name != nil {
		tn.Name = *upd.Name
	}
	if upd.Status != nil {
		tn.Status = *upd.Status
	}
	if upd.Plan != nil {
		tn.Plan = *upd.Plan
	}
	if upd.MaxUsers != nil {
		tn.MaxUsers = *upd.MaxUsers
	}
	if upd.MaxProjects != nil {
		tn.MaxProjects = *upd.MaxProjects
	}
	if len(upd.Fields()) > 0 {
		tn.UpdatedAt = at
	}
	t.st.tenants[id] = tn
	return tn, nil
}

func (t *tx) ListTenants(ctx context.Context, f model.TenantFilter, p model.Page) ([]model.TenantDetails, int, error) {
	var matched []model.Tenant
	for _, tn := range t.st.tenants {
		if f.Status != "" && tn.Status != f.Status {
			continue
		}
		if f.Plan != "" && tn.Plan != f.Plan {
			continue
		}
		matched = append(matched, tn)
	}
	sort.Slice(matched, func(i, j int) bool {
		return newerFirst(matched[i].CreatedAt, matched[j].CreatedAt, matched[i].ID, matched[j].ID)
	})
	out := make([]model.TenantDetails, 0, len(matched))
	for _, tn := range paginate(matched, p) {
		stats, _ := t.TenantStats(ctx, tn.ID)
		out = append(out, model.TenantDetails{Tenant: tn, Stats: stats})
	}
	return out, len(matched), nil
}

func (t *tx) TenantStats(_ context.Context, id string) (model.TenantStats, error) {
	var stats model.TenantStats
	for _, u := range t.st.users {
		if u.TenantID == id {
			stats.TotalUsers++
		}
	}
	for _, p := range t.st.projects {
		if p.TenantID == id {
			stats.TotalProjects++
		}
	}
	for _, tk := range t.st.tasks {
		if tk.TenantID == id {
			stats.TotalTasks++
		}
	}
	return stats, nil
}

// --- users ---

func (t *tx) InsertUser(_ context.Context, u model.User) error {
	for _, existing := range t.st.users {
		if existing.TenantID == u.TenantID && strings.EqualFold(existing.Email, u.Email) {
			return model.ErrDuplicateEmail
		}
	}
	if u.TenantID != "" {
		if _, ok := t.st.tenants[u.TenantID]; !ok {
			return model.ErrNotFound
		}
	}
	t.st.users[u.ID] = u
	return nil
}

func (t *tx) UserByID(_ context.Context, id string) (model.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (t *tx) UserByEmail(_ context.Context, tenantID, email string) (model.User, error) {
	for _, u := range t.st.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (t *tx) EmailTaken(ctx context.Context, tenantID, email string) (bool, error) {
	_, err := t.UserByEmail(ctx, tenantID, email)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *tx) UpdateUser(_ context.Context, id string, upd model.UserUpdate, at time.Time) (model.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	if len(upd.Fields()) > 0 {
		u.UpdatedAt = at
	}
	t.st.users[id] = u
	return u, nil
}

func (t *tx) DeleteUser(_ context.Context, id string) error {
	if _, ok := t.st.users[id]; !ok {
		return model.ErrNotFound
	}
	delete(t.st.users, id)
	for k, p := range t.st.projects {
		if p.CreatedBy == id {
			p.CreatedBy = ""
			t.st.projects[k] = p
		}
	}
	for k, tk := range t.st.tasks {
		if tk.CreatedBy == id || tk.AssignedTo == id {
			if tk.CreatedBy == id {
				tk.CreatedBy = ""
			}
			if tk.AssignedTo == id {
				tk.AssignedTo = ""
			}
			t.st.tasks[k] = tk
		}
	}
	return nil
}

func (t *tx) ListUsers(_ context.Context, tenantID string, f model.UserFilter, p model.Page) ([]model.User, int, error) {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []model.User
	for _, u := range t.st.users {
		if u.TenantID != tenantID {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.FullName), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool {
		return newerFirst(matched[i].CreatedAt, matched[j].CreatedAt, matched[i].ID, matched[j].ID)
	})
	return paginate(matched, p), len(matched), nil
}

func (t *tx) CountActiveUsers(_ context.Context, tenantID string) (int, error) {
	n := 0
	for _, u := range t.st.users {
		if u.TenantID == tenantID && u.Active {
			n++
		}
	}
	return n, nil
}

// --- projects ---

func (t *tx) InsertProject(_ context.Context, p model.Project) error {
	if _, ok := t.st.tenants[p.TenantID]; !ok {
		return model.ErrNotFound
	}
	p.Creator = nil
	p.TaskCount, p.CompletedTaskCount = 0, 0
	t.st.projects[p.ID] = p
	return nil
}

func (t *tx) ProjectByID(_ context.Context, id string) (model.Project, error) {
	p, ok := t.st.projects[id]
	if !ok {
		return model.Project{}, model.ErrNotFound
	}
	return t.decorateProject(p), nil
}

func (t *tx) decorateProject(p model.Project) model.Project {
	if u, ok := t.st.users[p.CreatedBy]; ok {
		p.Creator = summarize(u)
	}
	for _, tk := range t.st.tasks {
		if tk.ProjectID != p.ID {
			continue
		}
		p.TaskCount++
		if tk.Status == model.TaskCompleted {
			p.CompletedTaskCount++
		}
	}
	return p
}

func (t *tx) UpdateProject(_ context.Context, id string, upd model.ProjectUpdate, at time.Time) (model.Project, error) {
	p, ok := t.st.projects[id]
	if !ok {
		return model.Project{}, model.ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if len(upd.Fields()) > 0 {
		p.UpdatedAt = at
	}
	t.st.projects[id] = p
	return t.decorateProject(p), nil
}

func (t *tx) DeleteProject(_ context.Context, id string) error {
	if _, ok := t.st.projects[id]; !ok {
		return model.ErrNotFound
	}
	delete(t.st.projects, id)
	for k, tk := range t.st.tasks {
		if tk.ProjectID == id {
			delete(t.st.tasks, k)
		}
	}
	return nil
}

func (t *tx) ListProjects(_ context.Context, tenantID string, f model.ProjectFilter, p model.Page) ([]model.Project, int, error) {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []model.Project
	for _, pr := range t.st.projects {
		if pr.TenantID != tenantID {
			continue
		}
		if f.Status != "" && pr.Status != f.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(pr.Name), search) {
			continue
		}
		matched = append(matched, pr)
	}
	sort.Slice(matched, func(i, j int) bool {
		return newerFirst(matched[i].CreatedAt, matched[j].CreatedAt, matched[i].ID, matched[j].ID)
	})
	page := paginate(matched, p)
	out := make([]model.Project, 0, len(page))
	for _, pr := range page {
		out = append(out, t.decorateProject(pr))
	}
	return out, len(matched), nil
}

func (t *tx) CountProjects(_ context.Context, tenantID string) (int, error) {
	n := 0
	for _, p := range t.st.projects {
		if p.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// --- tasks ---

func (t *tx) InsertTask(_ context.Context, tk model.Task) error {
	if _, ok := t.st.projects[tk.ProjectID]; !ok {
		return model.ErrNotFound
	}
	if tk.AssignedTo != "" {
		if _, ok := t.st.users[tk.AssignedTo]; !ok {
			return model.ErrNotFound
		}
	}
	tk.Assignee = nil
	t.st.tasks[tk.ID] = tk
	return nil
}

func (t *tx) TaskByID(_ context.Context, id string) (model.Task, error) {
	tk, ok := t.st.tasks[id]
	if !ok {
		return model.Task{}, model.ErrNotFound
	}
	return t.decorateTask(tk), nil
}

func (t *tx) decorateTask(tk model.Task) model.Task {
	if u, ok := t.st.users[tk.AssignedTo]; ok {
		tk.Assignee = summarize(u)
	}
	return tk
}

func (t *tx) UpdateTask(_ context.Context, id string, upd model.TaskUpdate, at time.Time) (model.Task, error) {
	tk, ok := t.st.tasks[id]
	if !ok {
		return model.Task{}, model.ErrNotFound
	}
	if upd.Title != nil {
		tk.Title = *upd.Title
	}
	if upd.Description != nil {
		tk.Description = *upd.Description
	}
	if upd.Status != nil {
		tk.Status = *upd.Status
	}
	if upd.Priority != nil {
		tk.Priority = *upd.Priority
	}
	if upd.AssignedTo != nil {
		tk.AssignedTo = *upd.AssignedTo
	}
	if upd.ClearDueDate {
		tk.DueDate = nil
	} else if upd.DueDate != nil {
		due := *upd.DueDate
		tk.DueDate = &due
	}
	if len(upd.Fields()) > 0 {
		tk.UpdatedAt = at
	}
	t.st.tasks[id] = tk
	return t.decorateTask(tk), nil
}

func (t *tx) DeleteTask(_ context.Context, id string) error {
	if _, ok := t.st.tasks[id]; !ok {
		return model.ErrNotFound
	}
	delete(t.st.tasks, id)
	return nil
}

func (t *tx) ListTasks(_ context.Context, projectID string, f model.TaskFilter, p model.Page) ([]model.Task, int, error) {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []model.Task
	for _, tk := range t.st.tasks {
		if tk.ProjectID != projectID {
			continue
		}
		if f.Status != "" && tk.Status != f.Status {
			continue
		}
		if f.Priority != "" && tk.Priority != f.Priority {
			continue
		}
		if f.AssignedTo != "" && tk.AssignedTo != f.AssignedTo {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(tk.Title), search) {
			continue
		}
		matched = append(matched, tk)
	}
	sortTasks(matched)
	page := paginate(matched, p)
	out := make([]model.Task, 0, len(page))
	for _, tk := range page {
		out = append(out, t.decorateTask(tk))
	}
	return out, len(matched), nil
}

// --- dashboard ---

func (t *tx) DashboardStats(_ context.Context, tenantID string) (model.DashboardStats, error) {
	var stats model.DashboardStats
	for _, p := range t.st.projects {
		if p.TenantID == tenantID {
			stats.TotalProjects++
		}
	}
	for _, tk := range t.st.tasks {
		if tk.TenantID != tenantID {
			continue
		}
		stats.TotalTasks++
		if tk.Status == model.TaskCompleted {
			stats.CompletedTasks++
		} else {
			stats.PendingTasks++
		}
	}
	return stats, nil
}

func (t *tx) RecentProjects(ctx context.Context, tenantID string, limit int) ([]model.Project, error) {
	items, _, err := t.ListProjects(ctx, tenantID, model.ProjectFilter{}, model.Page{Page: 1, Limit: limit})
	return items, err
}

func (t *tx) TasksAssignedTo(_ context.Context, userID string, limit int) ([]model.Task, error) {
	var matched []model.Task
	for _, tk := range t.st.tasks {
		if tk.AssignedTo == userID {
			matched = append(matched, tk)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return newerFirst(matched[i].CreatedAt, matched[j].CreatedAt, matched[i].ID, matched[j].ID)
	})
	matched = paginate(matched, model.Page{Page: 1, Limit: limit})
	out := make([]model.Task, 0, len(matched))
	for _, tk := range matched {
		out = append(out, t.decorateTask(tk))
	}
	return out, nil
}

// --- helpers ---

func summarize(u model.User) *model.UserSummary {
	return &model.UserSummary{ID: u.ID, FullName: u.FullName, Email: u.Email}
}

func newerFirst(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID > bID
}

func sortTasks(tasks []model.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		switch {
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return newerFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
}

func paginate[T any](items []T, p model.Page) []T {
	if p.Limit <= 0 {
		return items
	}
	start := p.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
