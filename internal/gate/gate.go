// Package gate holds per-action sanity checks that can veto a match for
// actions prone to false positives.
package gate

import (
	"github.com/heungbuja/motionjudge/internal/landmark"
	"github.com/heungbuja/motionjudge/internal/matcher"
)

// Input is everything a validator may inspect about one matcher query.
type Input struct {
	// Target is the upper-case action label being judged.
	Target string
	// Query is the sanitized query sequence.
	Query landmark.Sequence
	// Best is the closest evaluation carrying Target.
	Best matcher.Evaluation
	// Evaluations is every evaluation ordered by distance.
	Evaluations []matcher.Evaluation
}

// Outcome is a validator verdict plus the metrics it was based on.
type Outcome struct {
	Passed  bool
	Check   string
	Reason  string
	Metrics map[string]float64
}

// Validator checks one property of a query.
type Validator interface {
	Name() string
	Validate(in Input) Outcome
}

// Registry maps action labels to the validators that must all pass.
// It is not safe to register concurrently with Check.
type Registry struct {
	validators map[string][]Validator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string][]Validator)}
}

// Register appends validators for action. They run in registration order.
func (r *Registry) Register(action string, vs ...Validator) {
	r.validators[action] = append(r.validators[action], vs...)
}

// Gated reports whether action has any validators.
func (r *Registry) Gated(action string) bool {
	return len(r.validators[action]) > 0
}

// Check runs the validators for in.Target and returns the first failure, or
// a passing outcome when every validator passes or none are registered.
func (r *Registry) Check(in Input) Outcome {
	for _, v := range r.validators[in.Target] {
		if out := v.Validate(in); !out.Passed {
			if out.Check == "" {
				out.Check = v.Name()
			}
			return out
		}
	}
	return Outcome{Passed: true}
}

// Thresholds configures the default validators.
type Thresholds struct {
	ClapMaxMinDistance  float64
	ClapMaxMeanDistance float64
	ClapMinRange        float64
	MarginCosine        float64
	MarginDistance      float64
}

// DefaultThresholds are the hand-tuned bounds the reference set was calibrated with.
var DefaultThresholds = Thresholds{
	ClapMaxMinDistance:  0.32,
	ClapMaxMeanDistance: 0.55,
	ClapMinRange:        0.12,
	MarginCosine:        0.05,
	MarginDistance:      0.5,
}

// ClapAction is the label gated by default.
const ClapAction = "CLAP"

// NewDefaultRegistry gates CLAP with the wrist convergence check and the margin check.
func NewDefaultRegistry(th Thresholds) *Registry {
	r := NewRegistry()
	r.Register(ClapAction,
		WristConvergence{
			MaxMin:   th.ClapMaxMinDistance,
			MaxMean:  th.ClapMaxMeanDistance,
			MinRange: th.ClapMinRange,
		},
		Margin{Cosine: th.MarginCosine, Distance: th.MarginDistance},
	)
	return r
}
