// Package detector extracts body pose landmarks from still images.
package detector

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/heungbuja/motionjudge/internal/errs"
)

// ErrDecode is returned when image bytes cannot be decoded.
var ErrDecode = fmt.Errorf("%w: image could not be decoded", errs.ErrValidation)

// ErrNoDetector is returned by NopDetector.
var ErrNoDetector = fmt.Errorf("%w: pose detector not configured", errs.ErrUnavailable)

// Detector defines the interface for pose detection implementations.
type Detector interface {
	// Detect analyzes an image and returns the detected pose.
	// Returns nil if no person is visible.
	Detect(frame *gocv.Mat) (*Pose, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for pose detection.
type Config struct {
	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// ModelComplexity selects the MediaPipe pose model (0, 1 or 2).
	ModelComplexity int

	// Script is the pose service script. Empty searches the default locations.
	Script string

	// Python is the interpreter. Empty prefers a local venv, then python3.
	Python string

	// IdleTimeout stops the subprocess after this long without requests.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence:   0.5,
		ModelComplexity: 1,
		IdleTimeout:     30 * time.Second,
	}
}

// DecodeImage decodes encoded image bytes (JPEG, PNG, ...) into a BGR Mat.
// The caller owns the returned Mat.
func DecodeImage(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), ErrDecode
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return mat, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if mat.Empty() {
		return mat, ErrDecode
	}
	return mat, nil
}

// NopDetector rejects every frame. It stands in when no pose service is
// configured so that landmark-only routes keep working.
type NopDetector struct{}

// Detect implements Detector.
func (NopDetector) Detect(*gocv.Mat) (*Pose, error) { return nil, ErrNoDetector }

// Close implements Detector.
func (NopDetector) Close() error { return nil }
