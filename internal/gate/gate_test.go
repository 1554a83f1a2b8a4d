package gate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heungbuja/motionjudge/internal/gate"
	"github.com/heungbuja/motionjudge/internal/landmark"
	"github.com/heungbuja/motionjudge/internal/matcher"
	"github.com/heungbuja/motionjudge/internal/reference"
	"github.com/heungbuja/motionjudge/testdata"
)

func eval(action string, dist, cos float64) matcher.Evaluation {
	return matcher.Evaluation{Reference: reference.Sequence{Action: action}, Distance: dist, Cosine: cos}
}

func TestWristDistances(t *testing.T) {
	dists, err := gate.WristDistances(testdata.Clap(4))
	require.NoError(t, err)
	require.Len(t, dists, 4)
	// half-gaps 0.06, 0.032, 0.004, 0.032 over a 0.2 shoulder width
	assert.InDelta(t, 0.6, dists[0], 1e-9)
	assert.InDelta(t, 0.32, dists[1], 1e-9)
	assert.InDelta(t, 0.04, dists[2], 1e-9)

	full, err := gate.WristDistances(testdata.FullBody(testdata.Clap(4)))
	require.NoError(t, err)
	assert.InDeltaSlice(t, dists, full, 1e-9)
}

func TestWristConvergence(t *testing.T) {
	v := gate.WristConvergence{
		MaxMin:   gate.DefaultThresholds.ClapMaxMinDistance,
		MaxMean:  gate.DefaultThresholds.ClapMaxMeanDistance,
		MinRange: gate.DefaultThresholds.ClapMinRange,
	}

	tests := []struct {
		name   string
		query  landmark.Sequence
		passed bool
	}{
		{"clap converges and separates", testdata.Clap(8), true},
		{"arms stretched never approach", testdata.Stretch(8), false},
		{"hands at sides never approach", testdata.Static(8), false},
		{"hands held together do not separate", handsTogether(8), false},
		{"empty query", landmark.Sequence{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := v.Validate(gate.Input{Target: "CLAP", Query: tt.query})
			assert.Equal(t, tt.passed, out.Passed, out.Reason)
			assert.Equal(t, "wrist_convergence", out.Check)
		})
	}
}

func handsTogether(frames int) landmark.Sequence {
	seq := testdata.Clap(frames)
	for _, f := range seq {
		f[landmark.LeftWrist] = landmark.Point{X: 0.51, Y: 0.42}
		f[landmark.RightWrist] = landmark.Point{X: 0.49, Y: 0.42}
	}
	return seq
}

func TestMargin(t *testing.T) {
	m := gate.Margin{Cosine: 0.05, Distance: 0.5}

	tests := []struct {
		name   string
		best   matcher.Evaluation
		evals  []matcher.Evaluation
		passed bool
	}{
		{
			name:   "no competing action",
			best:   eval("CLAP", 1, 0.95),
			evals:  []matcher.Evaluation{eval("CLAP", 1, 0.95), eval("CLAP", 2, 0.9)},
			passed: true,
		},
		{
			name:   "clear cosine margin",
			best:   eval("CLAP", 1, 0.95),
			evals:  []matcher.Evaluation{eval("CLAP", 1, 0.95), eval("TILT", 1.1, 0.85)},
			passed: true,
		},
		{
			name:   "competitor clearly farther",
			best:   eval("CLAP", 1, 0.95),
			evals:  []matcher.Evaluation{eval("CLAP", 1, 0.95), eval("TILT", 1.6, 0.94)},
			passed: true,
		},
		{
			name:   "ambiguous",
			best:   eval("CLAP", 1, 0.95),
			evals:  []matcher.Evaluation{eval("CLAP", 1, 0.95), eval("TILT", 1.4, 0.93)},
			passed: false,
		},
		{
			name: "competitor chosen by cosine not distance",
			best: eval("CLAP", 1, 0.95),
			evals: []matcher.Evaluation{
				eval("CLAP", 1, 0.95),
				eval("ELBOW", 1.2, 0.5),
				eval("TILT", 1.3, 0.94),
			},
			passed: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := m.Validate(gate.Input{Target: "CLAP", Best: tt.best, Evaluations: tt.evals})
			assert.Equal(t, tt.passed, out.Passed, out.Reason)
		})
	}
}

type stubValidator struct {
	name  string
	pass  bool
	calls *int
}

func (s stubValidator) Name() string { return s.name }

func (s stubValidator) Validate(gate.Input) gate.Outcome {
	*s.calls++
	return gate.Outcome{Passed: s.pass}
}

func TestRegistry(t *testing.T) {
	var calls int
	r := gate.NewRegistry()
	r.Register("TILT", stubValidator{name: "first", pass: false, calls: &calls}, stubValidator{name: "second", pass: true, calls: &calls})

	assert.True(t, r.Gated("TILT"))
	assert.False(t, r.Gated("CLAP"))

	out := r.Check(gate.Input{Target: "TILT"})
	assert.False(t, out.Passed)
	assert.Equal(t, "first", out.Check)
	assert.Equal(t, 1, calls)

	assert.True(t, r.Check(gate.Input{Target: "STRETCH"}).Passed)
}

func TestDefaultRegistry(t *testing.T) {
	r := gate.NewDefaultRegistry(gate.DefaultThresholds)
	require.True(t, r.Gated(gate.ClapAction))

	query := testdata.Clap(8)
	evals, err := matcher.EvaluateQuery(query, []reference.Sequence{
		{Action: "CLAP", Landmarks: testdata.Clap(8)},
		{Action: "STRETCH", Landmarks: testdata.Stretch(8)},
	})
	require.NoError(t, err)
	best, ok := matcher.BestFor(evals, "CLAP")
	require.True(t, ok)

	out := r.Check(gate.Input{Target: "CLAP", Query: query, Best: best, Evaluations: evals})
	assert.True(t, out.Passed, out.Reason)

	out = r.Check(gate.Input{Target: "CLAP", Query: testdata.Stretch(8), Best: best, Evaluations: evals})
	assert.False(t, out.Passed)
	assert.Equal(t, "wrist_convergence", out.Check)
}
