package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"taskhub.io/internal/auth"
	"taskhub.io/internal/obs"
	"taskhub.io/internal/workspace"
)

const serviceName = "taskhub-api"

type pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe reports whether the store answers.
type ReadyProbe struct {
	Store   pinger
	Timeout time.Duration
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	if rp.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rp.Timeout)
		defer cancel()
	}
	return rp.Store.Ping(ctx)
}

// Limits configures the per-client rate limiters.
type Limits struct {
	Burst         int
	PerSecond     int
	AuthBurst     int
	AuthPerSecond int
}

// API is the HTTP surface.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	ws         *workspace.Service
	readyProbe ReadyProbe
	version    string
	limits     Limits
	proxies    TrustedProxies
	log        *zap.Logger
}

type Option func(*API)

func WithLimits(l Limits) Option {
	return func(a *API) { a.limits = l }
}

// WithTrustedProxies enables X-Forwarded-For for requests arriving from the
// given networks.
func WithTrustedProxies(tp TrustedProxies) Option {
	return func(a *API) { a.proxies = tp }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

func New(authSvc *auth.Service, ws *workspace.Service, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		ws:         ws,
		readyProbe: rp,
		version:    version,
		limits:     Limits{Burst: 40, PerSecond: 20, AuthBurst: 10, AuthPerSecond: 1},
		log:        obs.Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	// Credential endpoints get their own, tighter bucket.
	authLimited := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, a.limits.AuthBurst, a.limits.AuthPerSecond)
	}
	a.mux.Handle("POST /api/auth/register-tenant", authLimited(a.handleRegisterTenant))
	a.mux.Handle("POST /api/auth/login", authLimited(a.handleLogin))
	a.mux.Handle("GET /api/auth/me", a.withAuth(a.handleMe))
	a.mux.Handle("POST /api/auth/logout", a.withAuth(a.handleLogout))

	a.mux.Handle("GET /api/tenants", a.withAuth(a.handleListTenants))
	a.mux.Handle("GET /api/tenants/{tenantId}", a.withAuth(a.handleGetTenant))
	a.mux.Handle("PUT /api/tenants/{tenantId}", a.withAuth(a.handleUpdateTenant))
	a.mux.Handle("GET /api/tenants/{tenantId}/users", a.withAuth(a.handleListUsers))
	a.mux.Handle("POST /api/tenants/{tenantId}/users", a.withAuth(a.handleCreateUser))

	a.mux.Handle("GET /api/users/{userId}", a.withAuth(a.handleGetUser))
	a.mux.Handle("PUT /api/users/{userId}", a.withAuth(a.handleUpdateUser))
	a.mux.Handle("DELETE /api/users/{userId}", a.withAuth(a.handleDeleteUser))

	a.mux.Handle("GET /api/projects", a.withAuth(a.handleListProjects))
	a.mux.Handle("POST /api/projects", a.withAuth(a.handleCreateProject))
	a.mux.Handle("GET /api/projects/{projectId}", a.withAuth(a.handleGetProject))
	a.mux.Handle("PUT /api/projects/{projectId}", a.withAuth(a.handleUpdateProject))
	a.mux.Handle("DELETE /api/projects/{projectId}", a.withAuth(a.handleDeleteProject))
	a.mux.Handle("GET /api/projects/{projectId}/tasks", a.withAuth(a.handleListTasks))
	a.mux.Handle("POST /api/projects/{projectId}/tasks", a.withAuth(a.handleCreateTask))

	a.mux.Handle("GET /api/tasks/{taskId}", a.withAuth(a.handleGetTask))
	a.mux.Handle("PUT /api/tasks/{taskId}", a.withAuth(a.handleUpdateTask))
	a.mux.Handle("PATCH /api/tasks/{taskId}/status", a.withAuth(a.handleUpdateTaskStatus))
	a.mux.Handle("DELETE /api/tasks/{taskId}", a.withAuth(a.handleDeleteTask))

	a.mux.Handle("GET /api/dashboard", a.withAuth(a.handleDashboard))
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = RateLimit(h, a.limits.Burst, a.limits.PerSecond)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(a.log)(h)
	h = obs.Instrument(h)
	return RequestID(a.proxies)(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
