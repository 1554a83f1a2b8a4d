// Package matcher compares a query pose sequence against reference sequences
// by mean per-frame Euclidean distance and cosine similarity.
package matcher

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/heungbuja/motionjudge/internal/errs"
	"github.com/heungbuja/motionjudge/internal/landmark"
	"github.com/heungbuja/motionjudge/internal/reference"
)

// cosineEpsilon keeps the cosine denominator away from zero.
const cosineEpsilon = 1e-9

// ErrShapeMismatch is returned when query and reference frames disagree on shape.
var ErrShapeMismatch = fmt.Errorf("%w: query and reference landmark shapes differ", errs.ErrValidation)

// Evaluation is the comparison of a query against one reference.
type Evaluation struct {
	Reference reference.Sequence
	Distance  float64
	Cosine    float64
}

// ActionSummary averages the evaluations of one action label.
type ActionSummary struct {
	Action   string
	Distance float64
	Cosine   float64
	Count    int
}

// Compare resamples query to the reference length, shoulder-normalizes both
// and returns the mean Euclidean distance and mean cosine similarity of their
// flattened frames.
func Compare(query, ref landmark.Sequence) (distance, cosine float64, err error) {
	if err := query.Validate(); err != nil {
		return 0, 0, fmt.Errorf("query: %w", err)
	}
	if err := ref.Validate(); err != nil {
		return 0, 0, fmt.Errorf("reference: %w", err)
	}

	resampled := landmark.Resample(query, len(ref))
	if resampled.Landmarks() != ref.Landmarks() {
		return 0, 0, fmt.Errorf("%w: query has %d landmarks, reference has %d",
			ErrShapeMismatch, resampled.Landmarks(), ref.Landmarks())
	}

	q, err := landmark.NormalizeShoulder(resampled)
	if err != nil {
		return 0, 0, fmt.Errorf("normalize query: %w", err)
	}
	r, err := landmark.NormalizeShoulder(ref)
	if err != nil {
		return 0, 0, fmt.Errorf("normalize reference: %w", err)
	}

	distances := make([]float64, len(r))
	cosines := make([]float64, len(r))
	for t := range r {
		qv, rv := landmark.Flatten(q[t]), landmark.Flatten(r[t])
		distances[t] = floats.Distance(qv, rv, 2)
		cosines[t] = floats.Dot(qv, rv) / (floats.Norm(qv, 2)*floats.Norm(rv, 2) + cosineEpsilon)
	}
	return stat.Mean(distances, nil), stat.Mean(cosines, nil), nil
}

// EvaluateQuery compares query with every reference and returns the results
// ordered by ascending distance. Ties keep reference order.
func EvaluateQuery(query landmark.Sequence, refs []reference.Sequence) ([]Evaluation, error) {
	out := make([]Evaluation, 0, len(refs))
	for _, ref := range refs {
		dist, cos, err := Compare(query, ref.Landmarks)
		if err != nil {
			return nil, fmt.Errorf("compare with %s: %w", ref.Path, err)
		}
		out = append(out, Evaluation{Reference: ref, Distance: dist, Cosine: cos})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	return out, nil
}

// SummarizeByAction groups evaluations by action label and returns the
// per-action mean distance and cosine, ordered by ascending mean distance.
func SummarizeByAction(evals []Evaluation) []ActionSummary {
	var (
		order  []string
		groups = make(map[string][]Evaluation)
	)
	for _, e := range evals {
		a := e.Reference.Action
		if _, ok := groups[a]; !ok {
			order = append(order, a)
		}
		groups[a] = append(groups[a], e)
	}

	out := make([]ActionSummary, 0, len(order))
	for _, a := range order {
		g := groups[a]
		dists := make([]float64, len(g))
		coss := make([]float64, len(g))
		for i, e := range g {
			dists[i] = e.Distance
			coss[i] = e.Cosine
		}
		out = append(out, ActionSummary{
			Action:   a,
			Distance: stat.Mean(dists, nil),
			Cosine:   stat.Mean(coss, nil),
			Count:    len(g),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	return out
}

// BestFor returns the closest evaluation whose reference carries action.
// evals must already be ordered by distance.
func BestFor(evals []Evaluation, action string) (Evaluation, bool) {
	for _, e := range evals {
		if e.Reference.Action == action {
			return e, true
		}
	}
	return Evaluation{}, false
}

// Filter keeps evaluations within maxDistance and at or above minCosine.
// A nil bound is not applied.
func Filter(evals []Evaluation, maxDistance, minCosine *float64) []Evaluation {
	var out []Evaluation
	for _, e := range evals {
		if maxDistance != nil && e.Distance > *maxDistance {
			continue
		}
		if minCosine != nil && e.Cosine < *minCosine {
			continue
		}
		out = append(out, e)
	}
	return out
}
