package httpapi

import (
	"net/http"

	"taskhub.io/internal/model"
)

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.ws.GetUser(r.Context(), principalOf(r), r.PathValue("userId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch model.UserUpdate
	if err := decodeJSON(w, r, &patch); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	u, err := a.ws.UpdateUser(r.Context(), principalOf(r), r.PathValue("userId"), patch)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.ws.DeleteUser(r.Context(), principalOf(r), r.PathValue("userId")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
