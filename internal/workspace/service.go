// Package workspace is the resource-level operation surface. Every operation
// consults the authorization engine before touching data, runs quota checks
// inside the same transaction as the insert they guard, and records an audit
// entry after commit.
package workspace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskhub.io/internal/auth"
	"taskhub.io/internal/authz"
	"taskhub.io/internal/ids"
	"taskhub.io/internal/model"
	"taskhub.io/internal/obs"
	"taskhub.io/internal/quota"
	"taskhub.io/internal/store"
	"taskhub.io/internal/tenant"
)

const (
	maxTitleLength    = 255
	dashboardPageSize = 5
)

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, model.AuditEntry) {}

// Service guards tenant, user, project and task operations.
type Service struct {
	store   store.Store
	dir     *tenant.Directory
	quota   quota.Enforcer
	hasher  auth.Hasher
	auditor auth.Auditor
	log     *zap.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithAuditor(a auth.Auditor) Option {
	return func(s *Service) {
		if a != nil {
			s.auditor = a
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(st store.Store, dir *tenant.Directory, hasher auth.Hasher, opts ...Option) *Service {
	s := &Service{
		store:   st,
		dir:     dir,
		hasher:  hasher,
		auditor: nopAuditor{},
		log:     obs.Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) authorize(p auth.Principal, op authz.Op, res authz.Resource, fields ...string) error {
	d := authz.Decide(authz.Request{Principal: p, Op: op, Resource: res, Fields: fields})
	obs.ObserveAuthz(string(res.Type), string(op), d.Allowed)
	if !d.Allowed {
		s.log.Debug("access denied",
			zap.String("user_id", p.UserID),
			zap.String("role", string(p.Role)),
			zap.String("op", string(op)),
			zap.String("resource", string(res.Type)),
			zap.String("resource_id", res.ID),
			zap.String("rule", d.Rule),
		)
	}
	return d.Err()
}

func (s *Service) record(ctx context.Context, p auth.Principal, tenantID, action, entityType, entityID string) {
	s.auditor.Record(ctx, model.AuditEntry{
		TenantID:   tenantID,
		ActorID:    p.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	})
}

func (s *Service) timestamp() time.Time { return s.now().UTC() }

// knownID rejects ids that cannot name a stored entity, so a malformed id
// reads like a missing one on every store.
func knownID(id string) error {
	if !ids.IsEntity(id) {
		return model.ErrNotFound
	}
	return nil
}

func requireText(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", model.ErrValidation, field)
	}
	if len(value) > max {
		return "", fmt.Errorf("%w: %s is too long", model.ErrValidation, field)
	}
	return value, nil
}

func userResource(u model.User) authz.Resource {
	return authz.Resource{Type: authz.User, ID: u.ID, TenantID: u.TenantID}
}

func projectResource(p model.Project) authz.Resource {
	return authz.Resource{Type: authz.Project, ID: p.ID, TenantID: p.TenantID, CreatorID: p.CreatedBy}
}

func taskResource(t model.Task) authz.Resource {
	return authz.Resource{Type: authz.Task, ID: t.ID, TenantID: t.TenantID, CreatorID: t.CreatedBy}
}
