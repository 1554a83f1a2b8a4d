package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/heungbuja/motionjudge/internal/action"
	"github.com/heungbuja/motionjudge/internal/store"
)

// History records judgments in the store. A nil *History records nothing.
type History struct {
	store  *store.Store
	logger *slog.Logger
}

// NewHistory returns a History backed by s, or nil when s is nil.
func NewHistory(s *store.Store, logger *slog.Logger) *History {
	if s == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{store: s, logger: logger}
}

// Record stores j. Failures are only logged.
func (h *History) Record(j *store.Judgment) {
	if h == nil {
		return
	}
	if err := h.store.Judgments().Create(j); err != nil {
		h.logger.Warn("failed to record judgment", "request_id", j.ID, "error", err)
	}
}

type listJudgmentsResponse struct {
	Judgments []store.Judgment `json:"judgments"`
	Total     int              `json:"total"`
}

// JudgmentHandler serves GET /api/judgments.
type JudgmentHandler struct {
	store *store.Store
}

// NewJudgmentHandler creates a JudgmentHandler with the given store.
func NewJudgmentHandler(s *store.Store) *JudgmentHandler {
	return &JudgmentHandler{store: s}
}

// ServeHTTP lists recent judgments, newest first. Query parameters: action
// (label filter) and limit (default 50).
func (h *JudgmentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	label := action.Normalize(q.Get("action"))
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	judgments, err := h.store.Judgments().Recent(label, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list judgments")
		return
	}
	total, err := h.store.Judgments().Count(label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count judgments")
		return
	}

	if judgments == nil {
		judgments = []store.Judgment{}
	}
	writeJSON(w, http.StatusOK, listJudgmentsResponse{Judgments: judgments, Total: total})
}
