package judge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/heungbuja/motionjudge/internal/judge"
	"github.com/heungbuja/motionjudge/internal/landmark"
	"github.com/heungbuja/motionjudge/testdata"
)

func TestByProbability(t *testing.T) {
	th := judge.DefaultThresholds
	tests := []struct {
		p    float64
		want int
	}{
		{1, judge.High},
		{0.60, judge.High},
		{0.5999, judge.Medium},
		{0.40, judge.Medium},
		{0.30, judge.Low},
		{0.25, judge.Low},
		{0.2499, judge.None},
		{0, judge.None},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.ByProbability(tt.p), "p=%v", tt.p)
	}
}

func TestFallback(t *testing.T) {
	th := judge.DefaultThresholds

	assert.Equal(t, judge.Medium, th.Fallback("CLAP", 0.45, ""))
	assert.Equal(t, judge.High, th.Fallback("clap", 0.7, "CLAP"))
	assert.Equal(t, judge.None, th.Fallback("TILT", 0.9, "clap"))
	assert.Equal(t, judge.None, th.Fallback("CLAP", 0.1, "CLAP"))
}

func TestBySimilarity(t *testing.T) {
	th := judge.DefaultThresholds
	tests := []struct {
		name     string
		distance float64
		cosine   float64
		want     int
	}{
		{"close and aligned", 3.0, 0.95, judge.High},
		{"high boundary", 4.5, 0.92, judge.High},
		{"close but less aligned", 3.0, 0.9, judge.Medium},
		{"medium boundary", 6.5, 0.82, judge.Medium},
		{"too far for high", 5.0, 0.99, judge.Medium},
		{"far", 7.0, 0.99, judge.Low},
		{"misaligned", 1.0, 0.5, judge.Low},
		{"cosine clamped above one", 4.0, 1.3, judge.High},
		{"negative cosine still low", 1.0, -0.4, judge.Low},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, th.BySimilarity(tt.distance, tt.cosine))
		})
	}
}

func TestCheck(t *testing.T) {
	th := judge.DefaultThresholds

	p := th.Check(testdata.Clap(8))
	assert.True(t, p.Sufficient(), p.Reason)
	assert.Equal(t, 8, p.Frames)
	assert.Greater(t, p.Motion, th.MinMotion)

	p = th.Check(testdata.Static(8))
	assert.False(t, p.Sufficient())
	assert.Equal(t, "insufficient motion", p.Reason)
	assert.InDelta(t, 0, p.Motion, 1e-12)

	p = th.Check(landmark.Sequence{})
	assert.False(t, p.Sufficient())
	assert.Equal(t, "insufficient frames", p.Reason)

	strict := th
	strict.MinFrames = 10
	p = strict.Check(testdata.Clap(8))
	assert.Equal(t, "insufficient frames", p.Reason)
}
