package gate

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/heungbuja/motionjudge/internal/landmark"
	"github.com/heungbuja/motionjudge/internal/matcher"
)

// WristConvergence requires the hands to come together and move apart again.
// Distances are measured in shoulder widths.
type WristConvergence struct {
	MaxMin   float64 // closest approach must be at most this
	MaxMean  float64
	MinRange float64 // max-min spread must be at least this
}

// Name implements Validator.
func (WristConvergence) Name() string { return "wrist_convergence" }

// WristDistances returns the per-frame shoulder-normalized wrist-to-wrist distance.
func WristDistances(seq landmark.Sequence) ([]float64, error) {
	norm, err := landmark.NormalizeShoulder(seq)
	if err != nil {
		return nil, err
	}
	layout, err := landmark.LayoutFor(norm.Landmarks())
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(norm))
	for t, f := range norm {
		out[t] = f[layout.LeftWrist].Distance(f[layout.RightWrist])
	}
	return out, nil
}

// Validate implements Validator.
func (w WristConvergence) Validate(in Input) Outcome {
	dists, err := WristDistances(in.Query)
	if err != nil || len(dists) == 0 {
		return Outcome{Check: w.Name(), Reason: "wrists could not be located"}
	}

	lo, hi := floats.Min(dists), floats.Max(dists)
	metrics := map[string]float64{
		"min":   lo,
		"mean":  stat.Mean(dists, nil),
		"range": hi - lo,
	}
	out := Outcome{Check: w.Name(), Metrics: metrics}
	switch {
	case metrics["min"] > w.MaxMin:
		out.Reason = "wrists never came close enough"
	case metrics["mean"] > w.MaxMean:
		out.Reason = "wrists stayed apart on average"
	case metrics["range"] < w.MinRange:
		out.Reason = "wrists did not converge and separate"
	default:
		out.Passed = true
	}
	return out
}

// Margin rejects a target match that is not clearly better than the best
// match of any other action. The competitor is the other action with the
// highest cosine similarity.
type Margin struct {
	Cosine   float64
	Distance float64
}

// Name implements Validator.
func (Margin) Name() string { return "margin" }

// Validate implements Validator.
func (m Margin) Validate(in Input) Outcome {
	var (
		other matcher.Evaluation
		found bool
	)
	for _, e := range in.Evaluations {
		if e.Reference.Action == in.Target {
			continue
		}
		if !found || e.Cosine > other.Cosine {
			other, found = e, true
		}
	}
	if !found {
		return Outcome{Passed: true, Check: m.Name()}
	}

	out := Outcome{
		Check: m.Name(),
		Metrics: map[string]float64{
			"cosine_margin":  in.Best.Cosine - other.Cosine,
			"best_distance":  in.Best.Distance,
			"other_distance": other.Distance,
		},
		Passed: true,
	}
	if in.Best.Cosine-other.Cosine < m.Cosine && other.Distance <= in.Best.Distance+m.Distance {
		out.Passed = false
		out.Reason = "ambiguous against " + other.Reference.Action
	}
	return out
}
