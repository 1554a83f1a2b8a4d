package landmark

import "math"

// Two normalizations coexist. The classifier was trained on sequence-wide
// max-extent scaling and the reference matcher was calibrated on per-frame
// shoulder scaling; they must stay selected by call site.

// NormalizeMaxExtent centers every frame on the hip midpoint, keeps the trunk
// landmarks and divides all coordinates by the single largest
// distance-from-origin observed across the whole sequence.
//
// A degenerate sequence whose extent is below Epsilon is left unscaled.
func NormalizeMaxExtent(seq Sequence) (Sequence, error) {
	centered, err := centerOnHips(seq)
	if err != nil {
		return nil, err
	}
	centered = ReduceToTrunk(centered)

	var maxRange float64
	for _, f := range centered {
		for _, p := range f {
			maxRange = math.Max(maxRange, p.Norm())
		}
	}
	if maxRange < Epsilon {
		maxRange = 1.0
	}

	for _, f := range centered {
		for i := range f {
			f[i].X /= maxRange
			f[i].Y /= maxRange
		}
	}
	return centered, nil
}

// NormalizeShoulder centers every frame on the hip midpoint and divides each
// frame by its own shoulder-to-shoulder distance, floored at Epsilon.
func NormalizeShoulder(seq Sequence) (Sequence, error) {
	layout, err := layoutOf(seq)
	if err != nil {
		return nil, err
	}
	centered, err := centerOnHips(seq)
	if err != nil {
		return nil, err
	}

	for _, f := range centered {
		scale := math.Max(f[layout.LeftShoulder].Distance(f[layout.RightShoulder]), Epsilon)
		for i := range f {
			f[i].X /= scale
			f[i].Y /= scale
		}
	}
	return centered, nil
}

// centerOnHips returns a copy of seq translated so each frame's hip midpoint is the origin.
func centerOnHips(seq Sequence) (Sequence, error) {
	layout, err := layoutOf(seq)
	if err != nil {
		return nil, err
	}

	out := seq.Clone()
	for _, f := range out {
		lh, rh := f[layout.LeftHip], f[layout.RightHip]
		center := Point{X: (lh.X + rh.X) / 2, Y: (lh.Y + rh.Y) / 2}
		for i := range f {
			f[i] = f[i].Sub(center)
		}
	}
	return out, nil
}

func layoutOf(seq Sequence) (Layout, error) {
	if err := seq.Validate(); err != nil {
		return Layout{}, err
	}
	return LayoutFor(seq.Landmarks())
}
