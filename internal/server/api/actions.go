package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/heungbuja/motionjudge/internal/action"
	"github.com/heungbuja/motionjudge/internal/engine"
	"github.com/heungbuja/motionjudge/internal/store"
)

// ActionHandler handles HTTP requests for the action catalog. Reads fall back
// to the engine's in-memory catalog when no store is configured; writes need
// the store and are pushed into the engine on success.
type ActionHandler struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

// NewActionHandler creates a new ActionHandler. s may be nil.
func NewActionHandler(s *store.Store, e *engine.Engine, logger *slog.Logger) *ActionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionHandler{store: s, engine: e, logger: logger}
}

// ServeHTTP routes /api/actions and /api/actions/{code}.
func (h *ActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/actions")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	code, err := strconv.Atoi(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "action code must be an integer")
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, code)
	case http.MethodPut:
		h.update(w, r, code)
	case http.MethodDelete:
		h.delete(w, r, code)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type actionRequest struct {
	Code  *int   `json:"code"`
	Label string `json:"label"`
	Name  string `json:"name"`
}

type actionResponse struct {
	Code  int    `json:"code"`
	Label string `json:"label"`
	Name  string `json:"name"`
}

type listActionsResponse struct {
	Actions []actionResponse `json:"actions"`
}

func (h *ActionHandler) list(w http.ResponseWriter, r *http.Request) {
	response := listActionsResponse{Actions: []actionResponse{}}

	if h.store == nil {
		for _, a := range h.engine.Catalog().All() {
			response.Actions = append(response.Actions, actionResponse(a))
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	actions, err := h.store.Actions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list actions")
		return
	}
	for _, a := range actions {
		response.Actions = append(response.Actions, actionResponse{Code: a.Code, Label: a.Label, Name: a.Name})
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *ActionHandler) get(w http.ResponseWriter, r *http.Request, code int) {
	if h.store == nil {
		for _, a := range h.engine.Catalog().All() {
			if a.Code == code {
				writeJSON(w, http.StatusOK, actionResponse(a))
				return
			}
		}
		writeError(w, http.StatusNotFound, "Action not found")
		return
	}

	a, err := h.store.Actions().GetByCode(code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Action not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get action")
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Code: a.Code, Label: a.Label, Name: a.Name})
}

// create handles POST /api/actions.
func (h *ActionHandler) create(w http.ResponseWriter, r *http.Request) {
	if !h.writable(w) {
		return
	}

	var req actionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Code == nil {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if action.Normalize(req.Label) == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}

	if _, err := h.store.Actions().GetByCode(*req.Code); err == nil {
		writeError(w, http.StatusConflict, "Action code already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to check existing action")
		return
	}

	a := &store.Action{Code: *req.Code, Label: req.Label, Name: req.Name}
	if !h.save(w, a) {
		return
	}
	writeJSON(w, http.StatusCreated, actionResponse{Code: a.Code, Label: a.Label, Name: a.Name})
}

// update handles PUT /api/actions/{code}. Empty fields keep their value.
func (h *ActionHandler) update(w http.ResponseWriter, r *http.Request, code int) {
	if !h.writable(w) {
		return
	}

	a, err := h.store.Actions().GetByCode(code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Action not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get action")
		return
	}

	var req actionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Label != "" {
		a.Label = req.Label
	}
	if req.Name != "" {
		a.Name = req.Name
	}

	if !h.save(w, a) {
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Code: a.Code, Label: a.Label, Name: a.Name})
}

// delete handles DELETE /api/actions/{code}.
func (h *ActionHandler) delete(w http.ResponseWriter, r *http.Request, code int) {
	if !h.writable(w) {
		return
	}

	if err := h.store.Actions().Delete(code); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Action not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete action")
		return
	}
	h.refresh()
	w.WriteHeader(http.StatusNoContent)
}

func (h *ActionHandler) writable(w http.ResponseWriter) bool {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "action store not configured")
		return false
	}
	return true
}

// save upserts a, rejecting a label already held by another code.
func (h *ActionHandler) save(w http.ResponseWriter, a *store.Action) bool {
	existing, err := h.store.Actions().GetByLabel(a.Label)
	switch {
	case err == nil && existing.Code != a.Code:
		writeError(w, http.StatusConflict, "Label already bound to code "+strconv.Itoa(existing.Code))
		return false
	case err != nil && !errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusInternalServerError, "Failed to check existing label")
		return false
	}

	if err := h.store.Actions().Upsert(a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save action")
		return false
	}
	h.refresh()
	return true
}

// refresh reloads the engine catalog from the store.
func (h *ActionHandler) refresh() {
	catalog, err := h.store.Actions().Catalog()
	if err != nil {
		h.logger.Error("failed to reload action catalog", "error", err)
		return
	}
	h.engine.SetCatalog(catalog)
	h.logger.Info("action catalog reloaded", "actions", len(catalog.All()))
}
