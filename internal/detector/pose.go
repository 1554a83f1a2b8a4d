package detector

import (
	"github.com/heungbuja/motionjudge/internal/landmark"
)

// Pose is one detected person in MediaPipe's 33-point full-body layout.
// Coordinates are normalized to the image size.
type Pose struct {
	Points     []landmark.Point `json:"points"`
	Visibility []float64        `json:"visibility,omitempty"`
	Score      float64          `json:"score"`
}

// Frame returns the pose as a landmark frame.
func (p *Pose) Frame() landmark.Frame {
	if p == nil {
		return nil
	}
	f := make(landmark.Frame, len(p.Points))
	copy(f, p.Points)
	return f
}

// Complete reports whether every full-body landmark is present.
func (p *Pose) Complete() bool {
	return p != nil && len(p.Points) == landmark.FullBodyCount
}
