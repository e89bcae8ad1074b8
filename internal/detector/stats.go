package detector

import (
	"sync"
	"time"
)

// Stats is a snapshot of detector counters. Counters survive Stop/Start
// cycles and reset only on an explicit ResetStats.
type Stats struct {
	TotalDetections int        `json:"totalDetections"`
	FramesProcessed uint64     `json:"framesProcessed"`
	FramesDropped   uint64     `json:"framesDropped"`
	LastDetection   *time.Time `json:"lastDetection,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
}

type statsStore struct {
	mu              sync.Mutex
	totalDetections int
	framesProcessed uint64
	framesDropped   uint64
	lastDetection   time.Time
	startedAt       time.Time
}

func (s *statsStore) frameProcessed() {
	s.mu.Lock()
	s.framesProcessed++
	s.mu.Unlock()
}

func (s *statsStore) frameDropped() {
	s.mu.Lock()
	s.framesDropped++
	s.mu.Unlock()
}

func (s *statsStore) detection(at time.Time) {
	s.mu.Lock()
	s.totalDetections++
	s.lastDetection = at
	s.mu.Unlock()
}

func (s *statsStore) started(at time.Time) {
	s.mu.Lock()
	if s.startedAt.IsZero() {
		s.startedAt = at
	}
	s.mu.Unlock()
}

func (s *statsStore) reset() {
	s.mu.Lock()
	s.totalDetections = 0
	s.framesProcessed = 0
	s.framesDropped = 0
	s.lastDetection = time.Time{}
	s.startedAt = time.Time{}
	s.mu.Unlock()
}

func (s *statsStore) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		TotalDetections: s.totalDetections,
		FramesProcessed: s.framesProcessed,
		FramesDropped:   s.framesDropped,
	}
	if !s.lastDetection.IsZero() {
		t := s.lastDetection
		st.LastDetection = &t
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		st.StartedAt = &t
	}
	return st
}
