package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/heungbuja/motionjudge/internal/engine"
	"github.com/heungbuja/motionjudge/internal/errs"
	"github.com/heungbuja/motionjudge/internal/store"
)

// AnalyzeRequest is the body of POST /api/ai/brandnew/analyze.
type AnalyzeRequest struct {
	ActionCode *int     `json:"actionCode"`
	ActionName string   `json:"actionName"`
	FrameCount *int     `json:"frameCount"`
	Frames     []string `json:"frames"`
}

// AnalyzePoseRequest is the body of POST /api/ai/brandnew/analyze-pose and of
// every message on the judge WebSocket.
type AnalyzePoseRequest struct {
	ActionCode *int          `json:"actionCode"`
	ActionName string        `json:"actionName"`
	FrameCount *int          `json:"frameCount"`
	PoseFrames [][][]float64 `json:"poseFrames"`
}

// AnalyzeResponse is the classifier-path judgment.
type AnalyzeResponse struct {
	RequestID         string   `json:"requestId"`
	ActionCode        int      `json:"actionCode"`
	Judgment          int      `json:"judgment"`
	PredictedLabel    string   `json:"predictedLabel"`
	Confidence        float64  `json:"confidence"`
	TargetProbability *float64 `json:"targetProbability"`
	DecodeTimeMs      float64  `json:"decodeTimeMs"`
	PoseTimeMs        float64  `json:"poseTimeMs"`
	InferenceTimeMs   float64  `json:"inferenceTimeMs"`
}

// AnalyzeHandler serves the classifier routes.
type AnalyzeHandler struct {
	engine  *engine.Engine
	history *History
	logger  *slog.Logger
}

// NewAnalyzeHandler creates an AnalyzeHandler. history may be nil.
func NewAnalyzeHandler(e *engine.Engine, history *History, logger *slog.Logger) *AnalyzeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeHandler{engine: e, history: history, logger: logger}
}

// Images handles POST /api/ai/brandnew/analyze.
func (h *AnalyzeHandler) Images(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AnalyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.JudgeImages(r.Context(), req)
	if err != nil {
		h.fail(w, "analyze", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Poses handles POST /api/ai/brandnew/analyze-pose.
func (h *AnalyzeHandler) Poses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AnalyzePoseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.JudgePoses(r.Context(), req)
	if err != nil {
		h.fail(w, "analyze-pose", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// JudgeImages runs the classifier on base64 image frames.
func (h *AnalyzeHandler) JudgeImages(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	if len(req.Frames) == 0 {
		return nil, errs.Validationf("frames must not be empty")
	}
	images, err := decodeFrames(req.Frames)
	if err != nil {
		return nil, err
	}
	res, err := h.engine.ClassifyImages(ctx, images, req.ActionName, req.ActionCode)
	if err != nil {
		return nil, err
	}
	h.record(res, req.ActionName)
	return toAnalyzeResponse(res), nil
}

// JudgePoses runs the classifier on landmark frames.
func (h *AnalyzeHandler) JudgePoses(_ context.Context, req AnalyzePoseRequest) (*AnalyzeResponse, error) {
	res, err := h.engine.ClassifyPoses(req.PoseFrames, req.ActionName, req.ActionCode)
	if err != nil {
		return nil, err
	}
	h.record(res, req.ActionName)
	return toAnalyzeResponse(res), nil
}

func (h *AnalyzeHandler) record(res *engine.ClassifyResult, name string) {
	label, ok := h.engine.Catalog().Label(res.ActionCode)
	if !ok {
		label = name
	}
	code := res.ActionCode
	confidence := res.Confidence
	h.history.Record(&store.Judgment{
		ID:             res.RequestID,
		Path:           store.PathClassifier,
		ActionCode:     &code,
		ActionLabel:    label,
		PredictedLabel: res.PredictedLabel,
		Judgment:       res.Judgment,
		Confidence:     &confidence,
	})
}

func (h *AnalyzeHandler) fail(w http.ResponseWriter, route string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("classifier request failed", "route", route, "error", err)
	} else {
		h.logger.Warn("classifier request rejected", "route", route, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func toAnalyzeResponse(res *engine.ClassifyResult) *AnalyzeResponse {
	return &AnalyzeResponse{
		RequestID:         res.RequestID,
		ActionCode:        res.ActionCode,
		Judgment:          res.Judgment,
		PredictedLabel:    res.PredictedLabel,
		Confidence:        res.Confidence,
		TargetProbability: res.TargetProbability,
		DecodeTimeMs:      millis(res.DecodeTime),
		PoseTimeMs:        millis(res.PoseTime),
		InferenceTimeMs:   millis(res.InferenceTime),
	}
}
