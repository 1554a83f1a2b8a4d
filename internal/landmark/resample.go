package landmark

import "math"

// Resample stretches or shrinks seq to target frames by linear interpolation
// along the time axis. Resampling to the current length returns a copy.
func Resample(seq Sequence, target int) Sequence {
	if len(seq) == 0 || target <= 0 {
		return Sequence{}
	}
	if len(seq) == target {
		return seq.Clone()
	}

	positions := linspace(float64(len(seq)-1), target)
	out := make(Sequence, target)
	for t, pos := range positions {
		lower := int(math.Floor(pos))
		upper := int(math.Ceil(pos))
		alpha := pos - float64(lower)

		a, b := seq[lower], seq[upper]
		f := make(Frame, len(a))
		for i := range a {
			f[i] = Point{
				X: (1-alpha)*a[i].X + alpha*b[i].X,
				Y: (1-alpha)*a[i].Y + alpha*b[i].Y,
			}
		}
		out[t] = f
	}
	return out
}

// SampleFrames fits seq to exactly target frames without interpolation:
// shorter sequences are padded by repeating the last frame and longer ones
// keep the frames at evenly spaced (floored) indices.
func SampleFrames(seq Sequence, target int) Sequence {
	idx := SampleIndices(len(seq), target)
	out := make(Sequence, len(idx))
	for t, i := range idx {
		out[t] = append(Frame(nil), seq[i]...)
	}
	return out
}

// SampleIndices returns the source index of each of target output frames
// when fitting n frames with SampleFrames.
func SampleIndices(n, target int) []int {
	if n <= 0 || target <= 0 {
		return []int{}
	}
	out := make([]int, target)
	switch {
	case n == target:
		for i := range out {
			out[i] = i
		}
	case n < target:
		for i := range out {
			out[i] = min(i, n-1)
		}
	default:
		for i, pos := range linspace(float64(n-1), target) {
			out[i] = int(pos)
		}
	}
	return out
}

// linspace returns n evenly spaced values over [0, stop].
func linspace(stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		return out
	}
	step := stop / float64(n-1)
	for i := range out {
		out[i] = float64(i) * step
	}
	// pin the endpoint so Ceil never runs past the last frame
	out[n-1] = stop
	return out
}

// Flatten concatenates a frame's coordinates into one feature vector (x0,y0,x1,y1,...).
func Flatten(f Frame) []float64 {
	out := make([]float64, 0, 2*len(f))
	for _, p := range f {
		out = append(out, p.X, p.Y)
	}
	return out
}

// Motion returns the mean inter-frame displacement of seq: the average over
// consecutive frame pairs of the Euclidean norm of all landmark deltas.
func Motion(seq Sequence) float64 {
	if len(seq) < 2 {
		return 0
	}
	var total float64
	for t := 1; t < len(seq); t++ {
		prev, cur := seq[t-1], seq[t]
		var sum float64
		for i := range cur {
			if i >= len(prev) {
				break
			}
			d := cur[i].Sub(prev[i])
			sum += d.X*d.X + d.Y*d.Y
		}
		total += math.Sqrt(sum)
	}
	return total / float64(len(seq)-1)
}
