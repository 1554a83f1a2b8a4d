// Package judge maps classifier probabilities and matcher metrics onto the
// discrete 0-3 judgment scale.
package judge

import (
	"strings"

	"github.com/heungbuja/motionjudge/internal/landmark"
)

// Judgment levels.
const (
	None   = 0
	Low    = 1
	Medium = 2
	High   = 3
)

// DefaultMinValidFrames is the fewest frames with a detected pose the image
// classifier path accepts.
const DefaultMinValidFrames = 5

// Thresholds holds every cut-off used for scoring. The two paths keep
// separate tables.
type Thresholds struct {
	// classifier path
	ProbabilityHigh   float64
	ProbabilityMedium float64
	ProbabilityLow    float64

	// matcher path
	HighDistance   float64
	HighCosine     float64
	MediumDistance float64
	MediumCosine   float64

	// matcher precheck
	MinFrames int
	MinMotion float64
}

// DefaultThresholds are the hand-tuned values the shipped model and
// reference set were calibrated with.
var DefaultThresholds = Thresholds{
	ProbabilityHigh:   0.60,
	ProbabilityMedium: 0.40,
	ProbabilityLow:    0.25,
	HighDistance:      4.5,
	HighCosine:        0.92,
	MediumDistance:    6.5,
	MediumCosine:      0.82,
	MinFrames:         1,
	MinMotion:         0.03,
}

// ByProbability scores the probability assigned to the target action.
func (th Thresholds) ByProbability(p float64) int {
	switch {
	case p >= th.ProbabilityHigh:
		return High
	case p >= th.ProbabilityMedium:
		return Medium
	case p >= th.ProbabilityLow:
		return Low
	}
	return None
}

// Fallback scores a prediction when the target could not be resolved to a
// model class. Without a target the top confidence is scored; with one, the
// confidence only counts if the predicted label is the target.
func (th Thresholds) Fallback(predicted string, confidence float64, target string) int {
	target = strings.ToUpper(strings.TrimSpace(target))
	if target == "" {
		return th.ByProbability(confidence)
	}
	if strings.ToUpper(strings.TrimSpace(predicted)) != target {
		return None
	}
	return th.ByProbability(confidence)
}

// BySimilarity scores a matcher distance/cosine pair. The cosine is clamped to
// [0,1] and the result is never below Low: None is decided upstream.
func (th Thresholds) BySimilarity(distance, cosine float64) int {
	cosine = max(0, min(1, cosine))
	score := Low
	switch {
	case distance <= th.HighDistance && cosine >= th.HighCosine:
		score = High
	case distance <= th.MediumDistance && cosine >= th.MediumCosine:
		score = Medium
	}
	return max(Low, min(High, score))
}

// Precheck is the outcome of the motion-sufficiency check.
type Precheck struct {
	Frames int
	Motion float64
	Reason string
}

// Sufficient reports whether the sequence passed.
func (p Precheck) Sufficient() bool { return p.Reason == "" }

// Check verifies that seq has enough frames and enough inter-frame motion to
// be worth matching.
func (th Thresholds) Check(seq landmark.Sequence) Precheck {
	p := Precheck{Frames: len(seq)}
	if p.Frames < th.MinFrames || p.Frames == 0 {
		p.Reason = "insufficient frames"
		return p
	}
	p.Motion = landmark.Motion(seq)
	if p.Motion < th.MinMotion {
		p.Reason = "insufficient motion"
	}
	return p
}
