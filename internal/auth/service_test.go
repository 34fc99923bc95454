package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskhub.io/internal/model"
	"taskhub.io/internal/store"
	"taskhub.io/internal/store/memory"
	"taskhub.io/internal/tenant"
)

type recordingAuditor struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (r *recordingAuditor) Record(_ context.Context, e model.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAuditor) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type testEnv struct {
	svc     *Service
	store   *memory.Store
	auditor *recordingAuditor
	clock   *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	env := &testEnv{store: st, auditor: &recordingAuditor{}, clock: &now}
	clock := func() time.Time { return *env.clock }

	tokens, err := NewJWTTokens("test-secret", "taskhub", clock)
	if err != nil {
		t.Fatalf("NewJWTTokens: %v", err)
	}
	svc, err := NewService(st, tenant.NewDirectory(st, tenant.WithClock(clock)), tokens,
		WithHasher(NewBcryptHasher(bcrypt.MinCost)),
		WithAuditor(env.auditor),
		WithClock(clock),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	env.svc = svc
	return env
}

func (e *testEnv) register(t *testing.T, sub string) Registration {
	t.Helper()
	reg, err := e.svc.RegisterTenant(context.Background(), RegisterTenantInput{
		TenantName:    "Tenant " + sub,
		Subdomain:     sub,
		AdminEmail:    "admin@" + sub + ".io",
		AdminPassword: "correct-horse",
		AdminFullName: "Ada Admin",
	})
	if err != nil {
		t.Fatalf("RegisterTenant(%s): %v", sub, err)
	}
	return reg
}

func TestRegisterTenantCreatesTenantAndAdmin(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "acme")

	if reg.Tenant.MaxUsers != 5 || reg.Tenant.MaxProjects != 3 || reg.Tenant.Plan != model.PlanFree {
		t.Fatalf("unexpected tenant %+v", reg.Tenant)
	}
	if reg.Admin.Role != model.RoleTenantAdmin || reg.Admin.TenantID != reg.Tenant.ID || !reg.Admin.Active {
		t.Fatalf("unexpected admin %+v", reg.Admin)
	}
	if reg.Admin.PasswordHash == "correct-horse" || reg.Admin.PasswordHash == "" {
		t.Fatalf("password was not hashed")
	}
	if got := env.auditor.actions(); len(got) != 1 || got[0] != "REGISTER_TENANT" {
		t.Fatalf("unexpected audit trail %v", got)
	}
}

func TestRegisterTenantRejectsWeakPasswordBeforePersisting(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.RegisterTenant(context.Background(), RegisterTenantInput{
		TenantName: "Acme", Subdomain: "acme", AdminEmail: "a@acme.io", AdminPassword: "short", AdminFullName: "A",
	})
	if !errors.Is(err, model.ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	_ = env.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if taken, _ := tx.SubdomainTaken(ctx, "acme"); taken {
			t.Fatal("tenant persisted despite weak password")
		}
		return nil
	})
}

func TestRegisterTenantDuplicateSubdomain(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "acme")
	_, err := env.svc.RegisterTenant(context.Background(), RegisterTenantInput{
		TenantName: "Acme 2", Subdomain: "acme", AdminEmail: "other@acme.io", AdminPassword: "long-enough", AdminFullName: "B",
	})
	if !errors.Is(err, model.ErrDuplicateSubdomain) {
		t.Fatalf("expected duplicate subdomain, got %v", err)
	}
}

func TestRegisterTenantConcurrentSameSubdomain(t *testing.T) {
	env := newTestEnv(t)
	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.RegisterTenant(context.Background(), RegisterTenantInput{
				TenantName:    fmt.Sprintf("Racer %d", i),
				Subdomain:     "contested",
				AdminEmail:    fmt.Sprintf("admin%d@racer.io", i),
				AdminPassword: "long-enough",
				AdminFullName: "Racer",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case model.Code(err) == model.CodeDuplicateConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if successes != 1 || conflicts != n-1 {
		t.Fatalf("expected exactly one success, got %d successes and %d conflicts", successes, conflicts)
	}
}

func TestLoginRoundTripResolvesSamePrincipal(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "acme")

	sess, err := env.svc.Login(context.Background(), LoginInput{Email: "ADMIN@acme.io", Password: "correct-horse", Subdomain: "acme"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !sess.ExpiresAt.Equal(env.clock.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", sess.ExpiresAt)
	}
	p, err := env.svc.ResolvePrincipal(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("ResolvePrincipal: %v", err)
	}
	want := Principal{UserID: reg.Admin.ID, Role: model.RoleTenantAdmin, TenantID: reg.Tenant.ID}
	if p != want {
		t.Fatalf("principal %+v, want %+v", p, want)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "acme")

	_, wrongPassword := env.svc.Login(context.Background(), LoginInput{Email: "admin@acme.io", Password: "incorrect", Subdomain: "acme"})
	_, unknownEmail := env.svc.Login(context.Background(), LoginInput{Email: "ghost@acme.io", Password: "incorrect", Subdomain: "acme"})

	if !errors.Is(wrongPassword, model.ErrInvalidCredentials) || !errors.Is(unknownEmail, model.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v and %v", wrongPassword, unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() || model.Code(wrongPassword) != model.Code(unknownEmail) {
		t.Fatalf("responses differ: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestLoginTenantResolution(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "acme")

	if _, err := env.svc.Login(context.Background(), LoginInput{Email: "admin@acme.io", Password: "correct-horse"}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected subdomain required, got %v", err)
	}
	if _, err := env.svc.Login(context.Background(), LoginInput{Email: "admin@acme.io", Password: "correct-horse", Subdomain: "nope"}); !errors.Is(err, model.ErrTenantNotFound) {
		t.Fatalf("expected tenant not found, got %v", err)
	}

	suspended := model.TenantSuspended
	if _, err := env.svc.dir.UpdateTenant(context.Background(), reg.Tenant.ID, model.TenantUpdate{Status: &suspended}); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := env.svc.Login(context.Background(), LoginInput{Email: "admin@acme.io", Password: "correct-horse", Subdomain: "acme"}); !errors.Is(err, model.ErrTenantSuspended) {
		t.Fatalf("expected tenant suspended, got %v", err)
	}
}

func TestSuperAdminLoginNeedsNoSubdomain(t *testing.T) {
	env := newTestEnv(t)
	admin, created, err := env.svc.BootstrapSuperAdmin(context.Background(), "root@taskhub.io", "platform-pass", "")
	if err != nil || !created {
		t.Fatalf("BootstrapSuperAdmin: created=%v err=%v", created, err)
	}
	again, created, err := env.svc.BootstrapSuperAdmin(context.Background(), "root@taskhub.io", "platform-pass", "")
	if err != nil || created || again.ID != admin.ID {
		t.Fatalf("bootstrap not idempotent: created=%v err=%v", created, err)
	}

	sess, err := env.svc.Login(context.Background(), LoginInput{Email: "root@taskhub.io", Password: "platform-pass"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !sess.Principal.IsSuperAdmin() || sess.Principal.TenantID != "" {
		t.Fatalf("unexpected principal %+v", sess.Principal)
	}
	if _, err := env.svc.Login(context.Background(), LoginInput{Email: "root@taskhub.io", Password: "nope-nope"}); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestResolvePrincipalRejectsDeactivatedUser(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "acme")
	sess, err := env.svc.Login(context.Background(), LoginInput{Email: "admin@acme.io", Password: "correct-horse", Subdomain: "acme"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	inactive := false
	err = env.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.UpdateUser(ctx, reg.Admin.ID, model.UserUpdate{Active: &inactive}, *env.clock)
		return err
	})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := env.svc.ResolvePrincipal(context.Background(), sess.Token); !errors.Is(err, model.ErrInvalidToken) {
		t.Fatalf("expected invalid token for deactivated user, got %v", err)
	}
	if _, err := env.svc.Login(context.Background(), LoginInput{Email: "admin@acme.io", Password: "correct-horse", Subdomain: "acme"}); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Fatalf("expected inactive login to fail, got %v", err)
	}
}

func TestResolvePrincipalExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "acme")
	sess, err := env.svc.Login(context.Background(), LoginInput{Email: "admin@acme.io", Password: "correct-horse", Subdomain: "acme"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	*env.clock = env.clock.Add(24*time.Hour + time.Minute)
	if _, err := env.svc.ResolvePrincipal(context.Background(), sess.Token); !errors.Is(err, model.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestLogoutAndMe(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "acme")
	p := PrincipalOf(reg.Admin)

	prof, err := env.svc.Me(context.Background(), p)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if prof.User.ID != reg.Admin.ID || prof.Tenant == nil || prof.Tenant.Subdomain != "acme" {
		t.Fatalf("unexpected profile %+v", prof)
	}

	env.svc.Logout(context.Background(), p)
	got := env.auditor.actions()
	if got[len(got)-1] != "LOGOUT" {
		t.Fatalf("expected logout audit entry, got %v", got)
	}
}
