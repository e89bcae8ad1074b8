// Package sink delivers trigger events to external actions such as sound
// playback, chat alerts, and the event log.
package sink

import (
	"log"
	"sync"
	"time"

	"scarecrow/internal/region"
)

// Event describes one qualifying motion detection. Events are immutable
// once published.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	TotalArea int             `json:"totalArea"`
	Regions   []region.Region `json:"regions"`
	// Parameter values in effect when the trigger fired.
	Sensitivity     int `json:"sensitivity"`
	MinMotionArea   int `json:"minMotionArea"`
	CooldownSeconds int `json:"cooldownSeconds"`
}

// Sink receives trigger events. Implementations must tolerate being called
// from the dispatch goroutine and must not block indefinitely.
type Sink interface {
	Fire(event Event)
}

// Func adapts a plain function to the Sink interface.
type Func func(Event)

func (f Func) Fire(event Event) { f(event) }

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Fire(event Event) {
	for _, s := range m {
		s.Fire(event)
	}
}

// Async decouples the caller from slow sinks. Fire enqueues and returns
// immediately; a single worker goroutine drains the queue. When the queue is
// full the event is dropped rather than stalling detection.
type Async struct {
	sink   Sink
	queue  chan Event
	logger *log.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewAsync wraps sink with a buffered dispatch queue of the given depth.
// depth <= 0 selects a depth of 16.
func NewAsync(sink Sink, depth int, logger *log.Logger) *Async {
	if depth <= 0 {
		depth = 16
	}
	a := &Async{
		sink:   sink,
		queue:  make(chan Event, depth),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Fire(event Event) {
	select {
	case a.queue <- event:
	default:
		if a.logger != nil {
			a.logger.Printf("[Sink] queue full, dropping event %s", event.ID)
		}
	}
}

// Close stops the worker after draining queued events.
func (a *Async) Close() {
	a.stopOnce.Do(func() {
		close(a.queue)
	})
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for event := range a.queue {
		a.sink.Fire(event)
	}
}
