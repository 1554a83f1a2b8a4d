package landmark

import (
	"fmt"
	"math"
)

// visibilityTolerance widens the [0,1] band a visibility channel must fit in.
const visibilityTolerance = 1e-3

// Sanitize converts a raw (frames x landmarks x channels) array into a Sequence.
//
// Trailing channels that look like visibility/presence scores are dropped
// while more than two channels remain, the remaining coordinates are
// truncated to x,y, and 33-point detector output is reduced to the 22-point
// trunk subset. An empty input yields an empty sequence and no error.
func Sanitize(raw [][][]float64) (Sequence, error) {
	if len(raw) == 0 {
		return Sequence{}, nil
	}

	numLandmarks := len(raw[0])
	if numLandmarks == 0 {
		return nil, fmt.Errorf("%w: 0", ErrLandmarkCount)
	}
	channels := len(raw[0][0])
	for t, frame := range raw {
		if len(frame) != numLandmarks {
			return nil, fmt.Errorf("%w: frame %d has %d landmarks, expected %d", ErrRaggedSequence, t, len(frame), numLandmarks)
		}
		for i, lm := range frame {
			if len(lm) != channels {
				return nil, fmt.Errorf("%w: frame %d landmark %d has %d channels, expected %d", ErrRaggedSequence, t, i, len(lm), channels)
			}
		}
	}

	if channels < 2 {
		return nil, ErrCoordinateDims
	}

	for channels > 2 && isVisibilityChannel(raw, channels-1) {
		channels--
	}

	seq := make(Sequence, len(raw))
	for t, frame := range raw {
		f := make(Frame, numLandmarks)
		for i, lm := range frame {
			f[i] = Point{X: lm[0], Y: lm[1]}
		}
		seq[t] = f
	}

	seq = ReduceToTrunk(seq)
	if _, err := LayoutFor(seq.Landmarks()); err != nil {
		return nil, err
	}
	return seq, nil
}

// isVisibilityChannel reports whether every finite value of channel c lies in [0,1].
func isVisibilityChannel(raw [][][]float64, c int) bool {
	lo, hi := math.Inf(1), math.Inf(-1)
	found := false
	for _, frame := range raw {
		for _, lm := range frame {
			v := lm[c]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			found = true
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if !found {
		return false
	}
	return lo >= -visibilityTolerance && hi <= 1+visibilityTolerance
}

// ReduceToTrunk selects the 22 trunk landmarks from 33-point frames.
// Sequences with any other landmark count are returned unchanged.
func ReduceToTrunk(seq Sequence) Sequence {
	if seq.Landmarks() != FullBodyCount {
		return seq
	}
	out := make(Sequence, len(seq))
	for t, f := range seq {
		out[t] = append(Frame(nil), f[TrunkOffset:TrunkOffset+TrunkCount]...)
	}
	return out
}

// Raw converts s back into a (frames x landmarks x 2) array.
func (s Sequence) Raw() [][][]float64 {
	out := make([][][]float64, len(s))
	for t, f := range s {
		frame := make([][]float64, len(f))
		for i, p := range f {
			frame[i] = []float64{p.X, p.Y}
		}
		out[t] = frame
	}
	return out
}
