package detector

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/heungbuja/motionjudge/internal/landmark"
)

// MockDetector is a test implementation of the Detector interface.
// It replays a scripted list of poses, one per Detect call, wrapping around
// at the end. A nil entry simulates a frame with nobody in it.
type MockDetector struct {
	mu    sync.Mutex
	poses []*Pose
	next  int
	calls int
	err   error
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector(poses ...*Pose) *MockDetector {
	return &MockDetector{poses: poses}
}

// SetPoses replaces the script and rewinds it.
func (m *MockDetector) SetPoses(poses ...*Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses = poses
	m.next = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the next scripted pose or the configured error.
func (m *MockDetector) Detect(*gocv.Mat) (*Pose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.poses) == 0 {
		return nil, nil
	}
	p := m.poses[m.next%len(m.poses)]
	m.next++
	return p, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// PosesFrom converts each frame of seq into a scripted pose.
func PosesFrom(seq landmark.Sequence) []*Pose {
	out := make([]*Pose, len(seq))
	for t, f := range seq {
		pts := make([]landmark.Point, len(f))
		copy(pts, f)
		out[t] = &Pose{Points: pts, Score: 0.9}
	}
	return out
}
