package httpapi

import (
	"net/http"
	"time"

	"taskhub.io/internal/auth"
	"taskhub.io/internal/model"
)

type registerTenantRequest struct {
	TenantName    string `json:"tenant_name"`
	Subdomain     string `json:"subdomain"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
	AdminFullName string `json:"admin_full_name"`
}

type registerTenantResponse struct {
	Tenant model.Tenant `json:"tenant"`
	Admin  model.User   `json:"admin"`
}

type loginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Subdomain string `json:"subdomain,omitempty"`
}

type loginResponse struct {
	Token     string        `json:"token"`
	TokenType string        `json:"token_type"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      model.User    `json:"user"`
	Tenant    *model.Tenant `json:"tenant,omitempty"`
}

func (a *API) handleRegisterTenant(w http.ResponseWriter, r *http.Request) {
	var req registerTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	reg, err := a.auth.RegisterTenant(r.Context(), auth.RegisterTenantInput{
		TenantName:    req.TenantName,
		Subdomain:     req.Subdomain,
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
		AdminFullName: req.AdminFullName,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerTenantResponse{Tenant: reg.Tenant, Admin: reg.Admin})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	sess, err := a.auth.Login(r.Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		Subdomain: req.Subdomain,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     sess.Token,
		TokenType: "Bearer",
		ExpiresAt: sess.ExpiresAt,
		User:      sess.User,
		Tenant:    sess.Tenant,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := a.auth.Me(r.Context(), principalOf(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.auth.Logout(r.Context(), principalOf(r))
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}
