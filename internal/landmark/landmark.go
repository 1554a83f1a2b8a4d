// Package landmark provides body landmark types and the sequence transforms
// shared by the classifier and nearest-neighbor paths.
package landmark

import (
	"fmt"
	"math"

	"github.com/heungbuja/motionjudge/internal/errs"
)

// Landmark counts of the supported layouts.
const (
	// FullBodyCount is the raw MediaPipe pose detector output.
	FullBodyCount = 33
	// TrunkCount is the canonical body-only subset (full-body indices 11..32).
	TrunkCount = 22
	// TrunkOffset is the full-body index of the first trunk landmark.
	TrunkOffset = 11
)

// Trunk landmark indices following the 22-point canonical layout.
const (
	LeftShoulder   = 0
	RightShoulder  = 1
	LeftElbow      = 2
	RightElbow     = 3
	LeftWrist      = 4
	RightWrist     = 5
	LeftPinky      = 6
	RightPinky     = 7
	LeftIndex      = 8
	RightIndex     = 9
	LeftThumb      = 10
	RightThumb     = 11
	LeftHip        = 12
	RightHip       = 13
	LeftKnee       = 14
	RightKnee      = 15
	LeftAnkle      = 16
	RightAnkle     = 17
	LeftHeel       = 18
	RightHeel      = 19
	LeftFootIndex  = 20
	RightFootIndex = 21
)

// Epsilon is the floor applied to normalization scales.
const Epsilon = 1e-6

var (
	// ErrEmptySequence is returned when a sequence has no frames.
	ErrEmptySequence = fmt.Errorf("%w: empty sequence", errs.ErrValidation)
	// ErrCoordinateDims is returned when fewer than two coordinate channels exist.
	ErrCoordinateDims = fmt.Errorf("%w: at least 2 coordinate dimensions required", errs.ErrValidation)
	// ErrLandmarkCount is returned when shoulder/hip joints cannot be located.
	ErrLandmarkCount = fmt.Errorf("%w: unsupported landmark count", errs.ErrValidation)
	// ErrRaggedSequence is returned when frames disagree on shape.
	ErrRaggedSequence = fmt.Errorf("%w: frames do not share one shape", errs.ErrValidation)
)

// Point is a 2D landmark coordinate in normalized image space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Norm returns the Euclidean length of p.
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return p.Sub(q).Norm()
}

// Frame is one set of landmarks captured at a single instant.
type Frame []Point

// Sequence is an ordered list of frames for one attempted action.
type Sequence []Frame

// Landmarks returns the per-frame landmark count, or 0 for an empty sequence.
func (s Sequence) Landmarks() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Validate checks that s is non-empty and every frame has the same landmark count.
func (s Sequence) Validate() error {
	if len(s) == 0 {
		return ErrEmptySequence
	}
	n := len(s[0])
	for i, f := range s {
		if len(f) != n {
			return fmt.Errorf("%w: frame %d has %d landmarks, expected %d", ErrRaggedSequence, i, len(f), n)
		}
	}
	return nil
}

// Clone returns a deep copy of s.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	for i, f := range s {
		out[i] = append(Frame(nil), f...)
	}
	return out
}

// Layout locates the joints needed for normalization and heuristics.
type Layout struct {
	LeftShoulder  int
	RightShoulder int
	LeftHip       int
	RightHip      int
	LeftWrist     int
	RightWrist    int
}

// TrunkLayout is the layout of the 22-point canonical subset.
var TrunkLayout = Layout{
	LeftShoulder:  LeftShoulder,
	RightShoulder: RightShoulder,
	LeftHip:       LeftHip,
	RightHip:      RightHip,
	LeftWrist:     LeftWrist,
	RightWrist:    RightWrist,
}

// FullBodyLayout is the layout of the raw 33-point scheme.
var FullBodyLayout = Layout{
	LeftShoulder:  LeftShoulder + TrunkOffset,
	RightShoulder: RightShoulder + TrunkOffset,
	LeftHip:       LeftHip + TrunkOffset,
	RightHip:      RightHip + TrunkOffset,
	LeftWrist:     LeftWrist + TrunkOffset,
	RightWrist:    RightWrist + TrunkOffset,
}

// LayoutFor returns the joint layout for a landmark count.
// Counts of 25 and more are read with full-body indices.
func LayoutFor(n int) (Layout, error) {
	switch {
	case n == TrunkCount:
		return TrunkLayout, nil
	case n >= 25:
		return FullBodyLayout, nil
	default:
		return Layout{}, fmt.Errorf("%w: %d", ErrLandmarkCount, n)
	}
}
