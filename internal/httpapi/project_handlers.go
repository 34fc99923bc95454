package httpapi

import (
	"net/http"

	"taskhub.io/internal/model"
	"taskhub.io/internal/workspace"
)

func (a *API) handleListProjects(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	q := r.URL.Query()
	res, err := a.ws.ListProjects(r.Context(), principalOf(r), model.ProjectFilter{
		Status: model.ProjectStatus(q.Get("status")),
		Search: q.Get("search"),
	}, page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req workspace.NewProject
	if err := decodeJSON(w, r, &req); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	p, err := a.ws.CreateProject(r.Context(), principalOf(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := a.ws.GetProject(r.Context(), principalOf(r), r.PathValue("projectId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var patch model.ProjectUpdate
	if err := decodeJSON(w, r, &patch); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	p, err := a.ws.UpdateProject(r.Context(), principalOf(r), r.PathValue("projectId"), patch)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := a.ws.DeleteProject(r.Context(), principalOf(r), r.PathValue("projectId")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.ws.Dashboard(r.Context(), principalOf(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
