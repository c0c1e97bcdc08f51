// Package handler exposes the permit workflow over HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/worksafe-io/be-permits/internal/auth"
	"github.com/worksafe-io/be-permits/internal/errors"
	"github.com/worksafe-io/be-permits/internal/logger"
	"github.com/worksafe-io/be-permits/internal/repository"
	"github.com/worksafe-io/be-permits/internal/service"
)

// PermitHandler handles permit HTTP requests.
type PermitHandler struct {
	service *service.PermitService
	log     *logger.Logger
}

// NewPermitHandler creates a new permit handler.
func NewPermitHandler(service *service.PermitService, log *logger.Logger) *PermitHandler {
	return &PermitHandler{service: service, log: log}
}

// Register mounts the permit routes. Static segments are registered
// before the {id} routes so "pending" and "search" never parse as ids.
func (h *PermitHandler) Register(r *mux.Router) {
	r.HandleFunc("/permits", h.CreatePermit).Methods(http.MethodPost)
	r.HandleFunc("/permits", h.ListPermits).Methods(http.MethodGet)
	r.HandleFunc("/permits/pending", h.PendingPermits).Methods(http.MethodGet)
	r.HandleFunc("/permits/search", h.SearchPermits).Methods(http.MethodGet)
	r.HandleFunc("/permits/{id}/approve", h.ApprovePermit).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/permits/{id}/return", h.ReturnPermit).Methods(http.MethodPut)
	r.HandleFunc("/permits/{id}", h.GetPermit).Methods(http.MethodGet)
	r.HandleFunc("/permits/{id}", h.EditPermit).Methods(http.MethodPut)
	r.HandleFunc("/permits/{id}", h.DeletePermit).Methods(http.MethodDelete)
}

// CreatePermit handles POST /permits.
func (h *PermitHandler) CreatePermit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.log)
	if !ok {
		return
	}

	var req service.CreatePermitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.log, errors.InvalidInput("body", "invalid request body"))
		return
	}

	permit, err := h.service.Create(r.Context(), actor, &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Permit created successfully", map[string]any{
		"permit": permit,
	})
}

// ListPermits handles GET /permits.
func (h *PermitHandler) ListPermits(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.log)
	if !ok {
		return
	}

	page, pageSize := pagination(r)
	permits, total, err := h.service.List(r.Context(), actor, page, pageSize)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Permits fetched successfully", map[string]any{
		"permits": permits,
		"total":   total,
		"page":    page,
	})
}

// PendingPermits handles GET /permits/pending.
func (h *PermitHandler) PendingPermits(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.log)
	if !ok {
		return
	}

	page, pageSize := pagination(r)
	permits, total, err := h.service.Pending(r.Context(), actor, page, pageSize)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Pending permits fetched successfully", map[string]any{
		"permits": permits,
		"count":   total,
	})
}

// SearchPermits handles GET /permits/search.
func (h *PermitHandler) SearchPermits(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.log)
	if !ok {
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	page, pageSize := pagination(r)
	permits, total, err := h.service.Search(r.Context(), actor, filter, page, pageSize)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Permit search successful", map[string]any{
		"permits": permits,
		"count":   total,
	})
}

// GetPermit handles GET /permits/{id}.
func (h *PermitHandler) GetPermit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.log)
	if !ok {
		return
	}

	permit, err := h.service.Get(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Permit fetched successfully", map[string]any{
		"permit": permit,
	})
}

// ApprovePermit handles GET/POST /permits/{id}/approve.
func (h *PermitHandler) ApprovePermit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.log)
	if !ok {
		return
	}

	permit, err := h.service.Approve(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Permit approved and forwarded", map[string]any{
		"currentLevel": permit.CurrentLevel,
		"status":       permit.Status,
		"permit":       permit,
	})
}

// ReturnPermit handles PUT /permits/{id}/return.
func (h *PermitHandler) ReturnPermit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.log)
	if !ok {
		return
	}

	var req struct {
		RequiredChanges string `json:"requiredChanges"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.log, errors.InvalidInput("body", "invalid request body"))
		return
	}

	permit, err := h.service.Return(r.Context(), actor, mux.Vars(r)["id"], req.RequiredChanges)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Permit returned for corrections", map[string]any{
		"permit": permit,
	})
}

// EditPermit handles PUT /permits/{id}.
func (h *PermitHandler) EditPermit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.log)
	if !ok {
		return
	}

	var req service.EditPermitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.log, errors.InvalidInput("body", "invalid request body"))
		return
	}

	permit, err := h.service.Edit(r.Context(), actor, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Permit details updated successfully", map[string]any{
		"permit": permit,
	})
}

// DeletePermit handles DELETE /permits/{id}.
func (h *PermitHandler) DeletePermit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.log)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Permit deleted successfully", nil)
}

// ── request parsing helpers ───────────────────────────────────────────────────

// requireIdentity extracts the identity the auth middleware attached,
// rejecting with the middleware's own error when it is missing.
func requireIdentity(w http.ResponseWriter, r *http.Request, log *logger.Logger) (auth.Identity, bool) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, r, log, auth.ErrNoToken)
		return auth.Identity{}, false
	}
	return actor, true
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	return page, pageSize
}

// filterFromQuery parses the enumerated search parameters. Unknown
// query keys are ignored; values never reach the store as anything but
// a typed filter field.
func filterFromQuery(r *http.Request) (repository.PermitFilter, error) {
	q := r.URL.Query()
	filter := repository.PermitFilter{}

	strParam := func(key string) *string {
		if v := q.Get(key); v != "" {
			return &v
		}
		return nil
	}

	filter.PermitType = strParam("permitType")
	filter.Status = strParam("status")
	filter.IssueDate = strParam("issueDate")
	filter.ExpiryDate = strParam("expiryDate")
	filter.PermitNumber = strParam("permitNumber")
	filter.PONumber = strParam("poNumber")
	filter.EmployeeName = strParam("employeeName")
	filter.Location = strParam("location")
	filter.Remarks = strParam("remarks")

	if v := q.Get("currentLevel"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return filter, errors.InvalidInput("currentLevel", "must be an integer")
		}
		filter.CurrentLevel = &level
	}
	return filter, nil
}
