// Package testdata builds synthetic pose sequences and reference trees for tests.
package testdata

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/heungbuja/motionjudge/internal/landmark"
)

// Standing returns a 22-point trunk frame of a person facing the camera with
// arms hanging at their sides. Shoulders are 0.2 apart so wrist offsets
// translate to shoulder-normalized units by a factor of 5.
func Standing() landmark.Frame {
	f := make(landmark.Frame, landmark.TrunkCount)
	f[landmark.LeftShoulder] = landmark.Point{X: 0.60, Y: 0.35}
	f[landmark.RightShoulder] = landmark.Point{X: 0.40, Y: 0.35}
	f[landmark.LeftElbow] = landmark.Point{X: 0.65, Y: 0.45}
	f[landmark.RightElbow] = landmark.Point{X: 0.35, Y: 0.45}
	f[landmark.LeftHip] = landmark.Point{X: 0.56, Y: 0.60}
	f[landmark.RightHip] = landmark.Point{X: 0.44, Y: 0.60}
	f[landmark.LeftKnee] = landmark.Point{X: 0.55, Y: 0.78}
	f[landmark.RightKnee] = landmark.Point{X: 0.45, Y: 0.78}
	f[landmark.LeftAnkle] = landmark.Point{X: 0.55, Y: 0.94}
	f[landmark.RightAnkle] = landmark.Point{X: 0.45, Y: 0.94}
	f[landmark.LeftHeel] = landmark.Point{X: 0.54, Y: 0.96}
	f[landmark.RightHeel] = landmark.Point{X: 0.46, Y: 0.96}
	f[landmark.LeftFootIndex] = landmark.Point{X: 0.57, Y: 0.98}
	f[landmark.RightFootIndex] = landmark.Point{X: 0.43, Y: 0.98}
	setHands(f, 0.66, 0.34, 0.55)
	return f
}

// setHands places both wrists and the hand points that follow them.
func setHands(f landmark.Frame, leftX, rightX, y float64) {
	f[landmark.LeftWrist] = landmark.Point{X: leftX, Y: y}
	f[landmark.RightWrist] = landmark.Point{X: rightX, Y: y}
	f[landmark.LeftPinky] = landmark.Point{X: leftX + 0.01, Y: y + 0.02}
	f[landmark.RightPinky] = landmark.Point{X: rightX - 0.01, Y: y + 0.02}
	f[landmark.LeftIndex] = landmark.Point{X: leftX, Y: y + 0.03}
	f[landmark.RightIndex] = landmark.Point{X: rightX, Y: y + 0.03}
	f[landmark.LeftThumb] = landmark.Point{X: leftX - 0.01, Y: y + 0.01}
	f[landmark.RightThumb] = landmark.Point{X: rightX + 0.01, Y: y + 0.01}
}

// Clap returns a clapping sequence: wrists swing between 0.12 and 0.008
// apart in front of the chest, a 4-frame cycle.
func Clap(frames int) landmark.Sequence {
	seq := make(landmark.Sequence, frames)
	for t := range seq {
		half := 0.032 + 0.028*math.Cos(2*math.Pi*float64(t)/4)
		f := Standing()
		setHands(f, 0.5+half, 0.5-half, 0.42)
		seq[t] = f
	}
	return seq
}

// Stretch returns a sequence with both arms reaching outward and back,
// wrists never closer than 0.5 apart.
func Stretch(frames int) landmark.Sequence {
	seq := make(landmark.Sequence, frames)
	for t := range seq {
		half := 0.3 + 0.05*math.Cos(2*math.Pi*float64(t)/4)
		f := Standing()
		f[landmark.LeftElbow] = landmark.Point{X: 0.5 + half*0.6, Y: 0.36}
		f[landmark.RightElbow] = landmark.Point{X: 0.5 - half*0.6, Y: 0.36}
		setHands(f, 0.5+half, 0.5-half, 0.36)
		seq[t] = f
	}
	return seq
}

// Static returns a sequence where nothing moves.
func Static(frames int) landmark.Sequence {
	seq := make(landmark.Sequence, frames)
	for t := range seq {
		seq[t] = Standing()
	}
	return seq
}

// FullBody expands trunk frames into 33-point detector output by prepending
// eleven face points above the shoulders.
func FullBody(seq landmark.Sequence) landmark.Sequence {
	out := make(landmark.Sequence, len(seq))
	for t, f := range seq {
		full := make(landmark.Frame, 0, landmark.FullBodyCount)
		for i := 0; i < landmark.TrunkOffset; i++ {
			full = append(full, landmark.Point{X: 0.45 + 0.01*float64(i), Y: 0.15 + 0.005*float64(i)})
		}
		out[t] = append(full, f...)
	}
	return out
}

// WithVisibility appends a constant visibility channel to every landmark.
func WithVisibility(seq landmark.Sequence, v float64) [][][]float64 {
	raw := seq.Raw()
	for _, f := range raw {
		for i := range f {
			f[i] = append(f[i], v)
		}
	}
	return raw
}

// Reference describes one sequence file of a reference tree.
type Reference struct {
	Person   string
	Action   string
	Sequence int
	Frames   landmark.Sequence
}

// WriteReferences lays refs out as root/person/action/<person>_<action>_seqNNN.json.
func WriteReferences(root string, refs ...Reference) error {
	for _, ref := range refs {
		dir := filepath.Join(root, ref.Person, ref.Action)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create reference dir: %w", err)
		}
		data, err := json.Marshal(map[string]any{"landmarks": ref.Frames.Raw()})
		if err != nil {
			return fmt.Errorf("encode reference: %w", err)
		}
		name := fmt.Sprintf("%s_%s_seq%03d.json", ref.Person, ref.Action, ref.Sequence)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return fmt.Errorf("write reference: %w", err)
		}
	}
	return nil
}

// DefaultReferences is a small tree with one clap and one stretch per person.
func DefaultReferences() []Reference {
	return []Reference{
		{Person: "p01", Action: "clap", Sequence: 1, Frames: Clap(8)},
		{Person: "p01", Action: "stretch", Sequence: 1, Frames: Stretch(8)},
		{Person: "p02", Action: "clap", Sequence: 2, Frames: Clap(12)},
		{Person: "p02", Action: "stretch", Sequence: 2, Frames: Stretch(10)},
	}
}

// RawJSON encodes seq as a bare (frames x landmarks x 2) JSON array.
func RawJSON(seq landmark.Sequence) ([]byte, error) {
	return json.Marshal(seq.Raw())
}
