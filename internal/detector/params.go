package detector

import "sync"

// Parameter ranges. Values outside these bounds are rejected, never clamped.
const (
	MinSensitivity = 10
	MaxSensitivity = 100

	MinMotionAreaFloor = 100
	MinMotionAreaCeil  = 2000

	MinCooldownSeconds = 1
	MaxCooldownSeconds = 30
)

// Parameters are the detection tuning values. Sensitivity maps directly to
// the background model's variance threshold, so a lower value flags more
// pixels as motion.
type Parameters struct {
	Sensitivity     int `json:"sensitivity"`
	MinMotionArea   int `json:"minMotionArea"`
	CooldownSeconds int `json:"cooldownSeconds"`
}

// DefaultParameters returns the stock tuning.
func DefaultParameters() Parameters {
	return Parameters{
		Sensitivity:     25,
		MinMotionArea:   500,
		CooldownSeconds: 5,
	}
}

// Validate checks every field against its range and returns the first
// violation found.
func (p Parameters) Validate() error {
	if p.Sensitivity < MinSensitivity || p.Sensitivity > MaxSensitivity {
		return &InvalidParameterError{Name: "sensitivity", Value: p.Sensitivity, Min: MinSensitivity, Max: MaxSensitivity}
	}
	if p.MinMotionArea < MinMotionAreaFloor || p.MinMotionArea > MinMotionAreaCeil {
		return &InvalidParameterError{Name: "minMotionArea", Value: p.MinMotionArea, Min: MinMotionAreaFloor, Max: MinMotionAreaCeil}
	}
	if p.CooldownSeconds < MinCooldownSeconds || p.CooldownSeconds > MaxCooldownSeconds {
		return &InvalidParameterError{Name: "cooldownSeconds", Value: p.CooldownSeconds, Min: MinCooldownSeconds, Max: MaxCooldownSeconds}
	}
	return nil
}

// paramStore holds the live tuning values. Writers validate before
// publishing; the detection loop snapshots once per frame so a single frame
// never sees a mix of old and new values.
type paramStore struct {
	mu     sync.RWMutex
	params Parameters
}

func newParamStore(p Parameters) *paramStore {
	return &paramStore{params: p}
}

func (s *paramStore) Get() Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

func (s *paramStore) Set(p Parameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}
