// Package store defines the transactional persistence contract shared by the
// tenant, identity, quota and workspace components.
package store

import (
	"context"
	"time"

	"taskhub.io/internal/model"
)

// Store runs units of work. Implementations must give InTx at least
// read-committed isolation and honour LockTenant as a row lock held until the
// unit of work ends.
type Store interface {
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// AuditSink appends audit rows outside any business transaction.
type AuditSink interface {
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	Tenants
	Users
	Projects
	Tasks
	Dashboards
}

type Tenants interface {
	InsertTenant(ctx context.Context, t model.Tenant) error
	TenantByID(ctx context.Context, id string) (model.Tenant, error)
	TenantBySubdomain(ctx context.Context, subdomain string) (model.Tenant, error)
	SubdomainTaken(ctx context.Context, subdomain string) (bool, error)
	// LockTenant reads the tenant row and locks it for the rest of the transaction.
	LockTenant(ctx context.Context, id string) (model.Tenant, error)
	UpdateTenant(ctx context.Context, id string, upd model.TenantUpdate, at time.Time) (model.Tenant, error)
	ListTenants(ctx context.Context, f model.TenantFilter, p model.Page) ([]model.TenantDetails, int, error)
	TenantStats(ctx context.Context, id string) (model.TenantStats, error)
}

type Users interface {
	InsertUser(ctx context.Context, u model.User) error
	UserByID(ctx context.Context, id string) (model.User, error)
	// UserByEmail looks a user up within tenantID. An empty tenantID
	// searches the tenant-less platform identities.
	UserByEmail(ctx context.Context, tenantID, email string) (model.User, error)
	EmailTaken(ctx context.Context, tenantID, email string) (bool, error)
	UpdateUser(ctx context.Context, id string, upd model.UserUpdate, at time.Time) (model.User, error)
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, tenantID string, f model.UserFilter, p model.Page) ([]model.User, int, error)
	CountActiveUsers(ctx context.Context, tenantID string) (int, error)
}

type Projects interface {
	InsertProject(ctx context.Context, p model.Project) error
	ProjectByID(ctx context.Context, id string) (model.Project, error)
	UpdateProject(ctx context.Context, id string, upd model.ProjectUpdate, at time.Time) (model.Project, error)
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, tenantID string, f model.ProjectFilter, p model.Page) ([]model.Project, int, error)
	CountProjects(ctx context.Context, tenantID string) (int, error)
}

type Tasks interface {
	InsertTask(ctx context.Context, t model.Task) error
	TaskByID(ctx context.Context, id string) (model.Task, error)
	UpdateTask(ctx context.Context, id string, upd model.TaskUpdate, at time.Time) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	// ListTasks orders by priority high to low, then due date ascending with
	// undated tasks last.
	ListTasks(ctx context.Context, projectID string, f model.TaskFilter, p model.Page) ([]model.Task, int, error)
}

type Dashboards interface {
	DashboardStats(ctx context.Context, tenantID string) (model.DashboardStats, error)
	RecentProjects(ctx context.Context, tenantID string, limit int) ([]model.Project, error)
	TasksAssignedTo(ctx context.Context, userID string, limit int) ([]model.Task, error)
}
