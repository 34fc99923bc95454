package httpapi

import (
	"net/http"

	"taskhub.io/internal/model"
	"taskhub.io/internal/workspace"
)

type taskStatusRequest struct {
	Status model.TaskStatus `json:"status"`
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	q := r.URL.Query()
	res, err := a.ws.ListTasks(r.Context(), principalOf(r), r.PathValue("projectId"), model.TaskFilter{
		Status:     model.TaskStatus(q.Get("status")),
		Priority:   model.Priority(q.Get("priority")),
		AssignedTo: q.Get("assigned_to"),
		Search:     q.Get("search"),
	}, page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req workspace.NewTask
	if err := decodeJSON(w, r, &req); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	t, err := a.ws.CreateTask(r.Context(), principalOf(r), r.PathValue("projectId"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.ws.GetTask(r.Context(), principalOf(r), r.PathValue("taskId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch model.TaskUpdate
	if err := decodeJSON(w, r, &patch); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	t, err := a.ws.UpdateTask(r.Context(), principalOf(r), r.PathValue("taskId"), patch)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req taskStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	t, err := a.ws.UpdateTaskStatus(r.Context(), principalOf(r), r.PathValue("taskId"), req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := a.ws.DeleteTask(r.Context(), principalOf(r), r.PathValue("taskId")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
