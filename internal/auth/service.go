package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskhub.io/internal/audit"
	"taskhub.io/internal/ids"
	"taskhub.io/internal/model"
	"taskhub.io/internal/obs"
	"taskhub.io/internal/store"
	"taskhub.io/internal/tenant"
)

// Auditor receives audit entries after the owning transaction commits.
type Auditor interface {
	Record(ctx context.Context, e model.AuditEntry)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, model.AuditEntry) {}

// Service registers tenants, authenticates users and resolves principals.
type Service struct {
	store   store.Store
	dir     *tenant.Directory
	tokens  Tokens
	hasher  Hasher
	auditor Auditor
	log     *zap.Logger
	now     func() time.Time
	ttl     time.Duration

	dummyOnce   sync.Once
	dummyDigest string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithHasher overrides the credential hasher (bcrypt at default cost otherwise).
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) error {
		if h == nil {
			return errors.New("auth: hasher is nil")
		}
		s.hasher = h
		return nil
	}
}

// WithAuditor sets the audit trail that receives session and registration events.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) error {
		if a != nil {
			s.auditor = a
		}
		return nil
	}
}

// WithTokenTTL configures session token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.ttl = ttl
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(st store.Store, dir *tenant.Directory, tokens Tokens, opts ...ServiceOption) (*Service, error) {
	if st == nil || dir == nil || tokens == nil {
		return nil, errors.New("auth: store, directory and tokens are required")
	}
	svc := &Service{
		store:   st,
		dir:     dir,
		tokens:  tokens,
		hasher:  NewBcryptHasher(0),
		auditor: nopAuditor{},
		log:     obs.Logger(),
		now:     time.Now,
		ttl:     DefaultTokenTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Hasher exposes the credential hasher so other components hash the same way.
func (s *Service) Hasher() Hasher { return s.hasher }

// RegisterTenantInput carries a self-service signup.
type RegisterTenantInput struct {
	TenantName    string
	Subdomain     string
	AdminEmail    string
	AdminPassword string
	AdminFullName string
}

// Registration is the result of RegisterTenant.
type Registration struct {
	Tenant model.Tenant
	Admin  model.User
}

// RegisterTenant creates a tenant and its first administrator atomically.
func (s *Service) RegisterTenant(ctx context.Context, in RegisterTenantInput) (Registration, error) {
	email, err := ValidateEmail(in.AdminEmail)
	if err != nil {
		return Registration{}, err
	}
	fullName := strings.TrimSpace(in.AdminFullName)
	if fullName == "" {
		return Registration{}, fmt.Errorf("%w: admin full name is required", model.ErrValidation)
	}
	if err := ValidatePassword(in.AdminPassword); err != nil {
		return Registration{}, err
	}
	t, err := s.dir.Prepare(in.TenantName, in.Subdomain, model.PlanFree)
	if err != nil {
		return Registration{}, err
	}
	digest, err := s.hasher.Hash(in.AdminPassword)
	if err != nil {
		return Registration{}, fmt.Errorf("hash password: %w", err)
	}
	admin := model.User{
		ID:           ids.Entity(),
		TenantID:     t.ID,
		Email:        email,
		PasswordHash: digest,
		FullName:     fullName,
		Role:         model.RoleTenantAdmin,
		Active:       true,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.CreatedAt,
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := s.dir.Insert(ctx, tx, t); err != nil {
			return err
		}
		taken, err := tx.EmailTaken(ctx, t.ID, email)
		if err != nil {
			return err
		}
		if taken {
			return model.ErrDuplicateEmail
		}
		return tx.InsertUser(ctx, admin)
	})
	if err != nil {
		return Registration{}, err
	}

	s.auditor.Record(ctx, model.AuditEntry{
		TenantID:   t.ID,
		ActorID:    admin.ID,
		Action:     audit.ActionRegisterTenant,
		EntityType: "tenant",
		EntityID:   t.ID,
	})
	s.log.Info("tenant registered", zap.String("tenant_id", t.ID), zap.String("subdomain", t.Subdomain))
	return Registration{Tenant: t, Admin: admin}, nil
}

// LoginInput carries credentials. Subdomain is required for tenant members.
type LoginInput struct {
	Email     string
	Password  string
	Subdomain string
}

// Session is an issued token and the identity it represents.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
	User      model.User
	Tenant    *model.Tenant
}

// Login authenticates a platform super admin or, failing that, a member of the
// tenant named by Subdomain. Unknown accounts, wrong passwords and inactive
// users all yield the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, in LoginInput) (sess Session, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = model.Code(err)
		}
		obs.LoginAttempt(result)
	}()

	email := model.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", model.ErrValidation)
	}
	subdomain := tenant.NormalizeSubdomain(in.Subdomain)

	var (
		user     model.User
		found    bool
		tenantRc *model.Tenant
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		platform, err := tx.UserByEmail(ctx, "", email)
		switch {
		case err == nil && platform.Role == model.RoleSuperAdmin:
			user, found = platform, true
			return nil
		case err != nil && !errors.Is(err, model.ErrNotFound):
			return err
		}

		if subdomain == "" {
			return fmt.Errorf("%w: tenant subdomain is required", model.ErrValidation)
		}
		t, err := tx.TenantBySubdomain(ctx, subdomain)
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrTenantNotFound
		}
		if err != nil {
			return err
		}
		if t.Status != model.TenantActive {
			return model.ErrTenantSuspended
		}
		tenantRc = &t

		member, err := tx.UserByEmail(ctx, t.ID, email)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		user, found = member, true
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	if !found {
		s.hasher.Verify(in.Password, s.dummy())
		return Session{}, model.ErrInvalidCredentials
	}
	if !s.hasher.Verify(in.Password, user.PasswordHash) || !user.Active {
		return Session{}, model.ErrInvalidCredentials
	}

	principal := PrincipalOf(user)
	token, exp, err := s.tokens.Issue(TokenClaims{
		UserID:   principal.UserID,
		Role:     principal.Role,
		TenantID: principal.TenantID,
	}, s.ttl)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, Principal: principal, User: user, Tenant: tenantRc}, nil
}

// dummy returns a digest verified against when no account matched, so that
// unknown emails cost about as much as wrong passwords.
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash(ids.New())
		if err != nil {
			s.log.Warn("dummy digest unavailable", zap.Error(err))
			return
		}
		s.dummyDigest = digest
	})
	return s.dummyDigest
}

// ResolvePrincipal verifies a token and re-reads the user it names. A token
// for a deleted or deactivated user is rejected even while unexpired, and role
// and tenant come from the stored user rather than the token.
func (s *Service) ResolvePrincipal(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	var p Principal
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		user, err := tx.UserByID(ctx, claims.UserID)
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrInvalidToken
		}
		if err != nil {
			return err
		}
		if !user.Active {
			return model.ErrInvalidToken
		}
		if user.TenantID != "" {
			t, err := tx.TenantByID(ctx, user.TenantID)
			if errors.Is(err, model.ErrNotFound) {
				return model.ErrInvalidToken
			}
			if err != nil {
				return err
			}
			if t.Status != model.TenantActive {
				return model.ErrTenantSuspended
			}
		}
		p = PrincipalOf(user)
		return nil
	})
	if err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Logout records the event. Tokens are not revoked; they expire on their own.
func (s *Service) Logout(ctx context.Context, p Principal) {
	s.auditor.Record(ctx, model.AuditEntry{
		TenantID:   p.TenantID,
		ActorID:    p.UserID,
		Action:     audit.ActionLogout,
		EntityType: "user",
		EntityID:   p.UserID,
	})
}

// Profile is the caller's own account and, for tenant members, their tenant.
type Profile struct {
	User   model.User    `json:"user"`
	Tenant *model.Tenant `json:"tenant,omitempty"`
}

// Me returns the profile of the principal.
func (s *Service) Me(ctx context.Context, p Principal) (Profile, error) {
	var out Profile
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		user, err := tx.UserByID(ctx, p.UserID)
		if err != nil {
			return err
		}
		out.User = user
		if user.TenantID == "" {
			return nil
		}
		t, err := tx.TenantByID(ctx, user.TenantID)
		if err != nil {
			return err
		}
		out.Tenant = &t
		return nil
	})
	return out, err
}

// BootstrapSuperAdmin creates the platform administrator unless one with the
// same email already exists. The boolean reports whether a user was created.
func (s *Service) BootstrapSuperAdmin(ctx context.Context, email, password, fullName string) (model.User, bool, error) {
	email, err := ValidateEmail(email)
	if err != nil {
		return model.User{}, false, err
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		fullName = "Platform Administrator"
	}
	if err := ValidatePassword(password); err != nil {
		return model.User{}, false, err
	}
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return model.User{}, false, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := model.User{
		ID:           ids.Entity(),
		Email:        email,
		PasswordHash: digest,
		FullName:     fullName,
		Role:         model.RoleSuperAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created := false
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.UserByEmail(ctx, "", email)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		created = true
		return tx.InsertUser(ctx, user)
	})
	if err != nil {
		return model.User{}, false, err
	}
	if created {
		s.auditor.Record(ctx, model.AuditEntry{
			ActorID:    user.ID,
			Action:     audit.ActionBootstrapAdmin,
			EntityType: "user",
			EntityID:   user.ID,
		})
	}
	return user, created, nil
}

// ValidateEmail normalizes an email address and rejects malformed ones.
func ValidateEmail(raw string) (string, error) {
	email := model.NormalizeEmail(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", model.ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is malformed", model.ErrValidation)
	}
	return email, nil
}
