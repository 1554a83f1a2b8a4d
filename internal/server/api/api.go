// Package api provides the HTTP handlers of the motion judgment service.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/heungbuja/motionjudge/internal/detector"
	"github.com/heungbuja/motionjudge/internal/engine"
	"github.com/heungbuja/motionjudge/internal/errs"
)

// MaxBodyBytes caps request bodies. Image batches are the largest payloads.
const MaxBodyBytes = 64 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrModelUnavailable),
		errors.Is(err, detector.ErrNoDetector),
		errors.Is(err, detector.ErrScriptNotFound):
		return http.StatusServiceUnavailable
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsUnavailable(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a size-limited JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Validationf("invalid JSON: %v", err)
	}
	return nil
}

// decodeFrames decodes base64 image frames. A data URL prefix such as
// "data:image/jpeg;base64," is accepted and stripped.
func decodeFrames(frames []string) ([][]byte, error) {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		if strings.HasPrefix(f, "data:") {
			if _, payload, ok := strings.Cut(f, ","); ok {
				f = payload
			}
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(f))
		if err != nil {
			return nil, errs.Validationf("frame %d is not valid base64", i)
		}
		out[i] = data
	}
	return out, nil
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
