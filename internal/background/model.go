package background

import (
	"fmt"

	"scarecrow/internal/video"
)

const (
	// DefaultHistory controls how quickly the model adapts; the effective
	// learning rate is 1/history per frame.
	DefaultHistory = 100

	initialVariance = 50.0
	varianceFloor   = 4.0
)

// Model maintains a per-pixel running estimate of the static scene. Each
// pixel carries an exponentially weighted mean and variance; a pixel whose
// squared deviation from the mean exceeds the variance threshold is
// classified as foreground.
//
// Classification of a frame always happens against the model state from
// before that frame is absorbed, so a moving object is compared with the
// scene it moved into, not with itself.
type Model struct {
	width   int
	height  int
	mean    []float32
	varr    []float32
	history int
	seen    int
}

// New creates a model for frames of the given dimensions. history <= 0
// selects DefaultHistory.
func New(width, height int, history int) (*Model, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid model dimensions %dx%d", width, height)
	}
	if history <= 0 {
		history = DefaultHistory
	}
	return &Model{
		width:   width,
		height:  height,
		mean:    make([]float32, width*height),
		varr:    make([]float32, width*height),
		history: history,
	}, nil
}

// Width returns the model frame width.
func (m *Model) Width() int { return m.width }

// Height returns the model frame height.
func (m *Model) Height() int { return m.height }

// Converged reports whether the model has absorbed enough frames for its
// estimate to be trustworthy. Before convergence, foreground masks are noise
// and must not drive detections.
func (m *Model) Converged() bool {
	return m.seen >= m.history/2
}

// FramesSeen returns how many frames the model has absorbed.
func (m *Model) FramesSeen() int { return m.seen }

// Reset discards the learned scene. The next frame seeds a fresh estimate.
func (m *Model) Reset() {
	for i := range m.mean {
		m.mean[i] = 0
		m.varr[i] = 0
	}
	m.seen = 0
}

// Apply classifies frame against the current estimate and then absorbs the
// frame into it, returning the foreground mask. varThreshold is the squared
// pixel deviation above which a pixel counts as foreground.
func (m *Model) Apply(frame *video.Frame, varThreshold float32) (*Mask, error) {
	if frame.Width != m.width || frame.Height != m.height {
		return nil, fmt.Errorf("frame size %dx%d does not match model %dx%d",
			frame.Width, frame.Height, m.width, m.height)
	}

	mask := NewMask(m.width, m.height)

	if m.seen == 0 {
		// First frame seeds the estimate; everything is background.
		for i, p := range frame.Pix {
			m.mean[i] = float32(p)
			m.varr[i] = initialVariance
		}
		m.seen = 1
		return mask, nil
	}

	alpha := float32(1) / float32(m.history)
	selective := m.Converged()
	for i, p := range frame.Pix {
		v := float32(p)
		delta := v - m.mean[i]
		sq := delta * delta

		if sq > varThreshold*m.varr[i] {
			mask.Bits[i] = 1
			// Once settled, foreground pixels are excluded from the
			// update so an intruder cannot bleed into the estimate
			// and inflate its own variance out of detectability.
			if selective {
				continue
			}
		}

		m.mean[i] += alpha * delta
		m.varr[i] += alpha * (sq - m.varr[i])
		if m.varr[i] < varianceFloor {
			m.varr[i] = varianceFloor
		}
	}
	m.seen++
	return mask, nil
}
