package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"taskhub.io/internal/audit"
	"taskhub.io/internal/model"
)

var statusByCode = map[string]int{
	model.CodeValidation:         http.StatusBadRequest,
	model.CodeWeakPassword:       http.StatusBadRequest,
	model.CodeDuplicateConflict:  http.StatusConflict,
	model.CodeQuotaExceeded:      http.StatusForbidden,
	model.CodeNotFound:           http.StatusNotFound,
	model.CodeForbidden:          http.StatusForbidden,
	model.CodeInvalidCredentials: http.StatusUnauthorized,
	model.CodeTenantNotFound:     http.StatusNotFound,
	model.CodeTenantSuspended:    http.StatusForbidden,
	model.CodeInvalidAssignee:    http.StatusBadRequest,
	model.CodeInvalidToken:       http.StatusUnauthorized,
	model.CodeTokenExpired:       http.StatusUnauthorized,
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"error": errorBody{Code: code, Message: msg},
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

// writeError maps a service error onto its status code. Unexpected errors are
// logged and reported without detail.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := model.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		a.log.Error("request failed",
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeErrorCode(w, r, http.StatusInternalServerError, model.CodeInternal, "internal error")
		return
	}
	writeErrorCode(w, r, status, code, err.Error())
}

func (a *API) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeErrorCode(w, r, http.StatusBadRequest, model.CodeValidation, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw, name string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return val, nil
}

func parsePage(r *http.Request) (model.Page, error) {
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), "page", 1)
	if err != nil {
		return model.Page{}, err
	}
	limit, err := parsePositiveInt(q.Get("limit"), "limit", 0)
	if err != nil {
		return model.Page{}, err
	}
	return model.Page{Page: page, Limit: limit}, nil
}
