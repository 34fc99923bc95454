package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskhub.io/internal/auth"
	"taskhub.io/internal/model"
	"taskhub.io/internal/store/memory"
	"taskhub.io/internal/tenant"
	"taskhub.io/internal/workspace"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	st := memory.New()
	dir := tenant.NewDirectory(st)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	tokens, err := auth.NewJWTTokens("test-secret", "taskhub", time.Now)
	if err != nil {
		t.Fatalf("NewJWTTokens: %v", err)
	}
	authSvc, err := auth.NewService(st, dir, tokens, auth.WithHasher(hasher))
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	ws := workspace.NewService(st, dir, hasher)

	api := New(authSvc, ws, ReadyProbe{Store: st}, "test",
		WithLimits(Limits{Burst: 1000, PerSecond: 1000, AuthBurst: 1000, AuthPerSecond: 1000}))
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, token)
}

// registerAndLogin signs up a tenant and returns the admin's token.
func (c *apiClient) registerAndLogin(sub string) (string, registerTenantResponse) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/auth/register-tenant", registerTenantRequest{
		TenantName:    "Tenant " + sub,
		Subdomain:     sub,
		AdminEmail:    "admin@" + sub + ".io",
		AdminPassword: "correct-horse",
		AdminFullName: "Ada Admin",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: status %d", sub, resp.StatusCode)
	}
	reg := decode[registerTenantResponse](c.t, resp)
	return c.login("admin@"+sub+".io", "correct-horse", sub), reg
}

func (c *apiClient) login(email, password, sub string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/auth/login", loginRequest{Email: email, Password: password, Subdomain: sub}, "")
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	out := decode[loginResponse](c.t, resp)
	if out.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return out.Token
}

type errorEnvelope struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id"`
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected status %d, got %d", status, resp.StatusCode)
	}
	body := decode[errorEnvelope](t, resp)
	if body.Error.Code != code {
		t.Fatalf("expected code %q, got %q (%s)", code, body.Error.Code, body.Error.Message)
	}
	if body.RequestID == "" {
		t.Fatalf("expected request_id in error body")
	}
}

func TestAPIProjectTaskFlow(t *testing.T) {
	c := newTestAPI(t)
	token, reg := c.registerAndLogin("acme")

	resp := c.do(http.MethodPost, "/api/tenants/"+reg.Tenant.ID+"/users", workspace.NewUser{
		Email: "bob@acme.io", Password: "correct-horse", FullName: "Bob",
	}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: status %d", resp.StatusCode)
	}
	bob := decode[model.User](t, resp)

	resp = c.do(http.MethodPost, "/api/projects", workspace.NewProject{Name: "Roadmap"}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project: status %d", resp.StatusCode)
	}
	project := decode[model.Project](t, resp)

	resp = c.do(http.MethodPost, "/api/projects/"+project.ID+"/tasks", workspace.NewTask{
		Title: "Write plan", Priority: model.PriorityHigh, AssignedTo: bob.ID,
	}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d", resp.StatusCode)
	}
	task := decode[model.Task](t, resp)
	if task.Assignee == nil || task.Assignee.ID != bob.ID {
		t.Fatalf("task not decorated with assignee: %+v", task)
	}

	resp = c.do(http.MethodPatch, "/api/tasks/"+task.ID+"/status", taskStatusRequest{Status: model.TaskCompleted}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status: status %d", resp.StatusCode)
	}

	resp = c.get("/api/projects/"+project.ID+"/tasks", url.Values{"status": {"completed"}}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: status %d", resp.StatusCode)
	}
	page := decode[model.PageResult[model.Task]](t, resp)
	if page.Total != 1 || page.Items[0].ID != task.ID {
		t.Fatalf("unexpected page %+v", page)
	}

	bobToken := c.login("bob@acme.io", "correct-horse", "acme")
	resp = c.get("/api/dashboard", nil, bobToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: status %d", resp.StatusCode)
	}
	dash := decode[model.Dashboard](t, resp)
	if dash.Stats.CompletedTasks != 1 || len(dash.MyTasks) != 1 {
		t.Fatalf("unexpected dashboard %+v", dash)
	}

	resp = c.do(http.MethodDelete, "/api/projects/"+project.ID, nil, bobToken)
	expectError(t, resp, http.StatusForbidden, model.CodeForbidden)

	resp = c.do(http.MethodDelete, "/api/projects/"+project.ID, nil, token)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete project: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPIEnforcesAuth(t *testing.T) {
	c := newTestAPI(t)

	expectError(t, c.get("/api/projects", nil, ""), http.StatusUnauthorized, model.CodeInvalidToken)
	expectError(t, c.get("/api/projects", nil, "garbage"), http.StatusUnauthorized, model.CodeInvalidToken)

	resp := c.get("/healthz", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = c.get("/readyz", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPICrossTenantIsNotFound(t *testing.T) {
	c := newTestAPI(t)
	acmeToken, acme := c.registerAndLogin("acme")
	globexToken, _ := c.registerAndLogin("globex")

	resp := c.do(http.MethodPost, "/api/projects", workspace.NewProject{Name: "Secret"}, acmeToken)
	project := decode[model.Project](t, resp)

	expectError(t, c.get("/api/projects/"+project.ID, nil, globexToken), http.StatusNotFound, model.CodeNotFound)
	expectError(t, c.get("/api/tenants/"+acme.Tenant.ID, nil, globexToken), http.StatusNotFound, model.CodeNotFound)
	expectError(t, c.get("/api/users/"+acme.Admin.ID, nil, globexToken), http.StatusNotFound, model.CodeNotFound)
}

func TestAPIMalformedIDs(t *testing.T) {
	c := newTestAPI(t)
	token, reg := c.registerAndLogin("acme")

	for _, path := range []string{"/api/tasks/nope", "/api/projects/nope", "/api/users/nope", "/api/projects/nope/tasks"} {
		expectError(t, c.get(path, nil, token), http.StatusNotFound, model.CodeNotFound)
	}

	resp := c.do(http.MethodPost, "/api/projects", workspace.NewProject{Name: "Roadmap"}, token)
	project := decode[model.Project](t, resp)

	resp = c.do(http.MethodPost, "/api/projects/"+project.ID+"/tasks", workspace.NewTask{Title: "Plan", AssignedTo: "nope"}, token)
	expectError(t, resp, http.StatusBadRequest, model.CodeInvalidAssignee)

	expectError(t, c.get("/api/projects/"+project.ID+"/tasks", url.Values{"assigned_to": {"nope"}}, token),
		http.StatusBadRequest, model.CodeValidation)

	resp = c.get("/api/projects/"+project.ID+"/tasks", url.Values{"assigned_to": {reg.Admin.ID}}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("filter by real assignee: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPILoginFailuresAreIndistinguishable(t *testing.T) {
	c := newTestAPI(t)
	c.registerAndLogin("acme")

	wrongPassword := c.do(http.MethodPost, "/api/auth/login", loginRequest{Email: "admin@acme.io", Password: "nope-nope", Subdomain: "acme"}, "")
	unknownUser := c.do(http.MethodPost, "/api/auth/login", loginRequest{Email: "ghost@acme.io", Password: "nope-nope", Subdomain: "acme"}, "")

	a := decode[errorEnvelope](t, wrongPassword)
	b := decode[errorEnvelope](t, unknownUser)
	if wrongPassword.StatusCode != http.StatusUnauthorized || unknownUser.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected statuses %d/%d", wrongPassword.StatusCode, unknownUser.StatusCode)
	}
	if a.Error != b.Error {
		t.Fatalf("login failures differ: %+v vs %+v", a.Error, b.Error)
	}

	expectError(t, c.do(http.MethodPost, "/api/auth/login", loginRequest{Email: "admin@acme.io", Password: "correct-horse", Subdomain: "nope"}, ""),
		http.StatusNotFound, model.CodeTenantNotFound)
}

func TestAPIRegistrationValidation(t *testing.T) {
	c := newTestAPI(t)
	c.registerAndLogin("acme")

	resp := c.do(http.MethodPost, "/api/auth/register-tenant", registerTenantRequest{
		TenantName: "Again", Subdomain: "acme", AdminEmail: "x@acme.io", AdminPassword: "correct-horse", AdminFullName: "X",
	}, "")
	expectError(t, resp, http.StatusConflict, model.CodeDuplicateConflict)

	resp = c.do(http.MethodPost, "/api/auth/register-tenant", map[string]any{"unknown": true}, "")
	expectError(t, resp, http.StatusBadRequest, model.CodeValidation)
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	a := New(nil, nil, ReadyProbe{}, "test")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	a.writeError(rr, req, errors.New("pq: connection refused"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("connection refused")) {
		t.Fatalf("internal detail leaked: %s", rr.Body.String())
	}
}
