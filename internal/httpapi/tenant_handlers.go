package httpapi

import (
	"net/http"

	"taskhub.io/internal/model"
	"taskhub.io/internal/workspace"
)

func (a *API) handleListTenants(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	q := r.URL.Query()
	res, err := a.ws.ListTenants(r.Context(), principalOf(r), model.TenantFilter{
		Status: model.TenantStatus(q.Get("status")),
		Plan:   model.Plan(q.Get("subscription_plan")),
	}, page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	d, err := a.ws.GetTenant(r.Context(), principalOf(r), r.PathValue("tenantId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	var patch model.TenantUpdate
	if err := decodeJSON(w, r, &patch); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	t, err := a.ws.UpdateTenant(r.Context(), principalOf(r), r.PathValue("tenantId"), patch)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	q := r.URL.Query()
	res, err := a.ws.ListUsers(r.Context(), principalOf(r), r.PathValue("tenantId"), model.UserFilter{
		Search: q.Get("search"),
		Role:   model.Role(q.Get("role")),
	}, page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req workspace.NewUser
	if err := decodeJSON(w, r, &req); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	u, err := a.ws.CreateUser(r.Context(), principalOf(r), r.PathValue("tenantId"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}
