package api

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/heungbuja/motionjudge/internal/engine"
	"github.com/heungbuja/motionjudge/internal/errs"
	"github.com/heungbuja/motionjudge/internal/seqio"
	"github.com/heungbuja/motionjudge/internal/store"
)

// ClassifyRequest is the body of POST /api/pose-sequences/classify. The
// query sequence comes from npzBase64, frames or landmarks, in that order.
type ClassifyRequest struct {
	ActionCode *int           `json:"actionCode"`
	ActionName string         `json:"actionName"`
	FrameCount *int           `json:"frameCount"`
	Frames     []string       `json:"frames"`
	NPZBase64  string         `json:"npzBase64"`
	Landmarks  [][][]float64  `json:"landmarks"`
	Metadata   seqio.Metadata `json:"metadata"`
}

// ClassifyResponse is the matcher-path judgment.
type ClassifyResponse struct {
	RequestID  string `json:"requestId"`
	ActionCode *int   `json:"actionCode"`
	Judgment   int    `json:"judgment"`
	Reason     string `json:"reason,omitempty"`
}

// ClassifyHandler serves the nearest-neighbor matcher route.
type ClassifyHandler struct {
	engine  *engine.Engine
	history *History
	logger  *slog.Logger
}

// NewClassifyHandler creates a ClassifyHandler. history may be nil.
func NewClassifyHandler(e *engine.Engine, history *History, logger *slog.Logger) *ClassifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifyHandler{engine: e, history: history, logger: logger}
}

// ServeHTTP handles POST /api/pose-sequences/classify. Query parameters:
// actions (repeatable) restricts the reference set and referenceDir
// overrides the reference directory. topK, distanceThreshold and
// cosineThreshold are accepted for compatibility and ignored.
func (h *ClassifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body ClassifyRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := toMatchRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	req.Actions = q["actions"]
	req.ReferenceDir = q.Get("referenceDir")

	res, err := h.engine.Match(r.Context(), req)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("match request failed", "error", err)
		} else {
			h.logger.Warn("match request rejected", "status", status, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	h.record(res)
	writeJSON(w, http.StatusOK, ClassifyResponse{
		RequestID:  res.RequestID,
		ActionCode: res.ActionCode,
		Judgment:   res.Judgment,
		Reason:     res.Reason,
	})
}

func toMatchRequest(body ClassifyRequest) (engine.MatchRequest, error) {
	req := engine.MatchRequest{
		Landmarks:  body.Landmarks,
		FrameCount: body.FrameCount,
		Metadata:   body.Metadata,
		ActionName: body.ActionName,
		ActionCode: body.ActionCode,
	}
	if s := strings.TrimSpace(body.NPZBase64); s != "" {
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return req, errs.Validationf("npzBase64 is not valid base64")
		}
		req.NPZ = data
	}
	if len(body.Frames) > 0 {
		images, err := decodeFrames(body.Frames)
		if err != nil {
			return req, err
		}
		req.Images = images
	}
	return req, nil
}

func (h *ClassifyHandler) record(res *engine.MatchResult) {
	j := &store.Judgment{
		ID:          res.RequestID,
		Path:        store.PathMatcher,
		ActionCode:  res.ActionCode,
		ActionLabel: res.Target,
		Judgment:    res.Judgment,
		Reason:      res.Reason,
	}
	if res.Best != nil {
		d, c := res.Best.Distance, res.Best.Cosine
		j.Distance = &d
		j.Cosine = &c
	}
	h.history.Record(j)
}
