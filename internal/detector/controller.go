// Package detector runs the motion detection loop and owns its lifecycle
// state machine.
package detector

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"scarecrow/internal/background"
	"scarecrow/internal/region"
	"scarecrow/internal/sink"
	"scarecrow/internal/video"
)

// State is the detector lifecycle state.
type State string

const (
	// StateIdle means no capture is running.
	StateIdle State = "idle"
	// StateMonitoring means frames are analyzed and may trigger.
	StateMonitoring State = "monitoring"
	// StatePaused means frames still feed the background model but no
	// triggers fire.
	StatePaused State = "paused"
	// StateCooldown means a trigger recently fired and further triggers
	// are suppressed until the cooldown elapses.
	StateCooldown State = "cooldown"
)

// Status is a point-in-time view of the detector.
type Status struct {
	State      State      `json:"state"`
	WarmedUp   bool       `json:"warmedUp"`
	Parameters Parameters `json:"parameters"`
	Stats      Stats      `json:"stats"`
	SourceURL  string     `json:"sourceUrl,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

// Config configures a Controller. Zero values select defaults.
type Config struct {
	Params Parameters
	// History is the background model adaptation window in frames.
	History int
	Clock   Clock
	Logger  *log.Logger
	Sink    sink.Sink
	// Open connects to a stream URL. Defaults to video.OpenMJPEG.
	Open func(url string) (video.Source, error)
}

// Controller drives the capture-analyze-trigger loop. All exported methods
// are safe for concurrent use.
type Controller struct {
	clock   Clock
	logger  *log.Logger
	sink    sink.Sink
	open    func(url string) (video.Source, error)
	history int

	params *paramStore
	stats  *statsStore

	mu        sync.RWMutex
	state     State
	paused    bool
	sourceURL string
	source    video.Source
	model     *background.Model
	lastErr   error
	loopDone  chan struct{}

	// Trigger bookkeeping for cooldown. cooldownFor is the cooldown that
	// was in effect when the last trigger fired; later parameter changes
	// do not shorten or extend an in-flight cooldown.
	lastTrigger time.Time
	cooldownFor time.Duration

	lastSeq    uint64
	haveSeq    bool
	warmupOnce bool
}

// New creates a stopped controller.
func New(cfg Config) (*Controller, error) {
	params := cfg.Params
	if params == (Parameters{}) {
		params = DefaultParameters()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	snk := cfg.Sink
	if snk == nil {
		snk = sink.Func(func(sink.Event) {})
	}
	open := cfg.Open
	if open == nil {
		open = func(url string) (video.Source, error) {
			return video.OpenMJPEG(url, video.MJPEGOptions{Logger: logger})
		}
	}
	history := cfg.History
	if history <= 0 {
		history = background.DefaultHistory
	}

	return &Controller{
		clock:   clock,
		logger:  logger,
		sink:    snk,
		open:    open,
		history: history,
		params:  newParamStore(params),
		stats:   &statsStore{},
		state:   StateIdle,
	}, nil
}

// Start connects to the stream and begins monitoring. Statistics from a
// previous session are retained; the background model is rebuilt from
// scratch so the detector warms up again.
func (c *Controller) Start(url string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return &InvalidStateTransitionError{Op: "start", State: state}
	}
	c.mu.Unlock()

	src, err := c.open(url)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		src.Close()
		return &InvalidStateTransitionError{Op: "start", State: state}
	}
	c.state = StateMonitoring
	c.paused = false
	c.sourceURL = url
	c.source = src
	c.model = nil
	c.lastErr = nil
	c.haveSeq = false
	c.warmupOnce = false
	c.loopDone = make(chan struct{})
	done := c.loopDone
	c.mu.Unlock()

	c.stats.started(c.clock.Now())
	c.logger.Printf("[Detector] monitoring %s", url)

	go func() {
		defer close(done)
		c.run(src)
	}()
	return nil
}

// Stop halts capture and returns to idle. Counters are preserved.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return &InvalidStateTransitionError{Op: "stop", State: StateIdle}
	}
	src := c.source
	done := c.loopDone
	c.state = StateIdle
	c.paused = false
	c.source = nil
	c.mu.Unlock()

	if src != nil {
		src.Close()
	}
	if done != nil {
		<-done
	}
	c.logger.Printf("[Detector] stopped")
	return nil
}

// Pause suspends triggering while the background model keeps adapting.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateMonitoring && c.state != StateCooldown {
		return &InvalidStateTransitionError{Op: "pause", State: c.state}
	}
	c.state = StatePaused
	c.paused = true
	c.logger.Printf("[Detector] paused")
	return nil
}

// Resume re-enables triggering. If the pause interrupted a cooldown that has
// not yet elapsed, the detector returns to cooldown rather than monitoring.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return &InvalidStateTransitionError{Op: "resume", State: c.state}
	}
	c.paused = false
	if c.inCooldownLocked(c.clock.Now()) {
		c.state = StateCooldown
	} else {
		c.state = StateMonitoring
	}
	c.logger.Printf("[Detector] resumed, state %s", c.state)
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Params returns the current tuning values.
func (c *Controller) Params() Parameters {
	return c.params.Get()
}

// SetParams validates and atomically replaces the tuning values. The change
// applies from the next frame; it never affects a cooldown already in
// flight.
func (c *Controller) SetParams(p Parameters) error {
	if err := c.params.Set(p); err != nil {
		return err
	}
	c.logger.Printf("[Detector] params: sensitivity=%d minMotionArea=%d cooldown=%ds",
		p.Sensitivity, p.MinMotionArea, p.CooldownSeconds)
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	return c.stats.snapshot()
}

// ResetStats zeroes all counters.
func (c *Controller) ResetStats() {
	c.stats.reset()
}

// Status returns the full detector snapshot.
func (c *Controller) Status() Status {
	c.mu.RLock()
	st := Status{
		State:     c.state,
		WarmedUp:  c.model != nil && c.model.Converged(),
		SourceURL: c.sourceURL,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	c.mu.RUnlock()

	st.Parameters = c.params.Get()
	st.Stats = c.stats.snapshot()
	return st
}

func (c *Controller) run(src video.Source) {
	for frame := range src.Frames() {
		c.processFrame(frame)
	}

	// Channel closed. If we did not ask for it, the source died.
	c.mu.Lock()
	if c.state != StateIdle {
		c.lastErr = src.Err()
		c.state = StateIdle
		c.paused = false
		c.source = nil
		if c.lastErr != nil {
			c.logger.Printf("[Detector] source failed: %v", c.lastErr)
		}
	}
	c.mu.Unlock()
}

func (c *Controller) processFrame(frame *video.Frame) {
	params := c.params.Get()
	now := c.clock.Now()

	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}

	if c.haveSeq && frame.Seq > c.lastSeq+1 {
		for i := uint64(0); i < frame.Seq-c.lastSeq-1; i++ {
			c.stats.frameDropped()
		}
	}
	c.lastSeq = frame.Seq
	c.haveSeq = true

	if c.model == nil || c.model.Width() != frame.Width || c.model.Height() != frame.Height {
		model, err := background.New(frame.Width, frame.Height, c.history)
		if err != nil {
			c.mu.Unlock()
			c.logger.Printf("[Detector] skipping frame: %v", err)
			return
		}
		c.model = model
	}

	mask, err := c.model.Apply(frame, float32(params.Sensitivity))
	if err != nil {
		c.mu.Unlock()
		c.logger.Printf("[Detector] skipping frame: %v", err)
		return
	}
	// Counted last so a processed-count observer sees the full cycle,
	// trigger dispatch included.
	defer c.stats.frameProcessed()

	if c.paused {
		c.mu.Unlock()
		return
	}

	if !c.model.Converged() {
		c.mu.Unlock()
		return
	}
	if !c.warmupOnce {
		c.warmupOnce = true
		c.logger.Printf("[Detector] background model ready after %d frames", c.model.FramesSeen())
	}

	// Cooldown elapses against the value captured at trigger time. The
	// frame that observes the elapse is evaluated normally below.
	if c.state == StateCooldown {
		if c.inCooldownLocked(now) {
			c.mu.Unlock()
			return
		}
		c.state = StateMonitoring
	}
	c.mu.Unlock()

	regions := region.Extract(mask.Denoise(), params.MinMotionArea)
	if len(regions) == 0 {
		return
	}

	event := sink.Event{
		ID:              uuid.New().String(),
		Timestamp:       now,
		TotalArea:       region.TotalArea(regions),
		Regions:         regions,
		Sensitivity:     params.Sensitivity,
		MinMotionArea:   params.MinMotionArea,
		CooldownSeconds: params.CooldownSeconds,
	}

	c.mu.Lock()
	if c.state != StateMonitoring {
		// Paused or stopped between analysis and fire.
		c.mu.Unlock()
		return
	}
	c.state = StateCooldown
	c.lastTrigger = now
	c.cooldownFor = time.Duration(params.CooldownSeconds) * time.Second
	c.mu.Unlock()

	c.stats.detection(now)
	c.logger.Printf("[Detector] motion: %d region(s), %d px total", len(regions), event.TotalArea)
	c.sink.Fire(event)
}

func (c *Controller) inCooldownLocked(now time.Time) bool {
	if c.lastTrigger.IsZero() {
		return false
	}
	return now.Sub(c.lastTrigger) < c.cooldownFor
}
