// Package sequencer runs motion programs: it owns the desired pose, paces the
// control loop and blends authority in and out.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gwillem/armseq/pkg/command"
	"github.com/gwillem/armseq/pkg/motion"
	"github.com/gwillem/armseq/pkg/robot"
)

var (
	// ErrInterrupted is returned when a run was cancelled before completion.
	ErrInterrupted = errors.New("program interrupted")
	// ErrAlreadyRunning is returned when Run is called during another run.
	ErrAlreadyRunning = errors.New("already running")
)

// SendError reports a frame the outbound channel refused. The run stops at that
// tick with authority left at its last value.
type SendError struct {
	Segment int
	Label   string
	Tick    int
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed in %s at tick %d: %v", e.Label, e.Tick, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// PoseSource supplies the observed pose used to seed a run.
type PoseSource interface {
	Pose(ctx context.Context) (robot.JointVector, error)
}

// State is a snapshot of the sequencer.
type State struct {
	Running   bool              `json:"running"`
	Program   string            `json:"program,omitempty"`
	Segment   int               `json:"segment"`
	Label     string            `json:"label,omitempty"`
	Tick      int               `json:"tick"`
	Total     int               `json:"total"`
	Frames    int               `json:"frames"`
	Authority float64           `json:"authority"`
	Pose      robot.JointVector `json:"pose"`
	Releasing bool              `json:"releasing"`
	StartedAt time.Time         `json:"started_at,omitzero"`
	Timestamp time.Time         `json:"timestamp,omitzero"`
}

// Result summarizes a finished run.
type Result struct {
	Frames    int
	Segments  int // segments fully executed, including a release
	Pose      robot.JointVector
	Authority float64
	Released  bool // an interrupt was followed by an authority release
}

// Config holds configuration for the sequencer.
type Config struct {
	Tick         time.Duration
	ReleaseSteps int
	Clock        Clock
	Logger       *zap.Logger
	Metrics      *Metrics
}

// Sequencer executes programs one at a time.
type Sequencer struct {
	emitter      *command.Emitter
	tick         time.Duration
	releaseSteps int
	clock        Clock
	logger       *zap.Logger
	metrics      *Metrics
	overrunLog   rate.Sometimes

	mu      sync.RWMutex
	state   State
	cancel  context.CancelFunc
	stateCh chan State
	logCh   chan string
}

// New creates a sequencer that emits through e.
func New(e *command.Emitter, cfg Config) *Sequencer {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Millisecond
	}
	if cfg.ReleaseSteps < 1 {
		cfg.ReleaseSteps = 400
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	return &Sequencer{
		emitter:      e,
		tick:         cfg.Tick,
		releaseSteps: cfg.ReleaseSteps,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		overrunLog:   rate.Sometimes{Interval: time.Second},
		state:        State{Segment: -1},
		stateCh:      make(chan State, 1),
		logCh:        make(chan string, 10),
	}
}

// States returns a channel that receives the latest state after every tick.
func (s *Sequencer) States() <-chan State {
	return s.stateCh
}

// Logs returns a channel that receives run events.
func (s *Sequencer) Logs() <-chan string {
	return s.logCh
}

// Tick returns the control period.
func (s *Sequencer) Tick() time.Duration {
	return s.tick
}

// Status returns a snapshot of the current or last run.
func (s *Sequencer) Status() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Interrupt cancels the active run. The run still releases authority before it
// returns. It reports whether a run was active.
func (s *Sequencer) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Sequencer) log(msg string, fields ...zap.Field) {
	s.logger.Info(msg, fields...)
	line := fmt.Sprintf("[%s] %s", s.clock.Now().Format("15:04:05"), msg)
	select {
	case s.logCh <- line:
	default:
		// Drop if channel full
	}
}

// RunFrom seeds the pose from src, then runs p.
func (s *Sequencer) RunFrom(ctx context.Context, p motion.Program, src PoseSource) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	pose, err := src.Pose(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("seed pose: %w", err)
	}
	return s.Run(ctx, p, pose)
}

// Run executes every segment of p in order, starting from initial. It returns
// after the last frame, after a refused frame (*SendError), or after an
// interrupt has released authority (ErrInterrupted).
func (s *Sequencer) Run(ctx context.Context, p motion.Program, initial robot.JointVector) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if !initial.Finite() {
		return Result{}, fmt.Errorf("initial pose has non-finite values")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	now := s.clock.Now()
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	s.cancel = cancel
	s.state = State{
		Running:   true,
		Program:   p.Name,
		Segment:   -1,
		Total:     p.TotalSteps(),
		Pose:      initial,
		StartedAt: now,
		Timestamp: now,
	}
	s.mu.Unlock()

	r := &run{
		s:       s,
		program: p,
		pose:    initial,
		anchor:  now,
	}
	s.log("Program started",
		zap.String("program", p.Name),
		zap.Int("segments", len(p.Segments)),
		zap.Int("ticks", p.TotalSteps()),
		zap.Duration("tick", s.tick),
		zap.Float64s("pose", initial[:]),
	)

	err := r.execute(ctx)
	s.finish(r, err)
	return r.result(), err
}

func (s *Sequencer) finish(r *run, err error) {
	outcome := "completed"
	var sendErr *SendError
	switch {
	case errors.As(err, &sendErr):
		outcome = "send_failed"
	case errors.Is(err, ErrInterrupted):
		outcome = "interrupted"
		s.metrics.Interrupts.Inc()
	case err != nil:
		outcome = "failed"
	}
	s.metrics.Runs.WithLabelValues(outcome).Inc()
	s.metrics.Segment.Set(-1)

	s.mu.Lock()
	s.cancel = nil
	s.state.Running = false
	s.state.Releasing = false
	st := s.state
	s.mu.Unlock()
	s.sendState(st)

	if err != nil {
		s.logger.Warn("Program stopped", zap.String("outcome", outcome), zap.Int("frames", r.frames), zap.Error(err))
		s.log("Program stopped: " + outcome)
		return
	}
	s.log("Program finished", zap.Int("frames", r.frames))
}

func (s *Sequencer) sendState(st State) {
	select {
	case s.stateCh <- st:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-s.stateCh:
		default:
		}
		select {
		case s.stateCh <- st:
		default:
		}
	}
}

// run is the mutable state of one program execution.
type run struct {
	s         *Sequencer
	program   motion.Program
	pose      robot.JointVector
	authority motion.AuthorityRamp
	frames    int
	segments  int
	released  bool

	// pacing: tick n after the anchor is due at anchor + n*period
	anchor time.Time
	n      int
}

func (r *run) result() Result {
	return Result{
		Frames:    r.frames,
		Segments:  r.segments,
		Pose:      r.pose,
		Authority: r.authority.Value(),
		Released:  r.released,
	}
}

func (r *run) execute(ctx context.Context) error {
	for i, seg := range r.program.Segments {
		if ctx.Err() != nil {
			return r.interrupted(ctx, i)
		}
		if err := r.segment(ctx, i, seg, false); err != nil {
			if errors.Is(err, errCancelled) {
				return r.interrupted(ctx, i)
			}
			return err
		}
	}
	return nil
}

var errCancelled = errors.New("cancelled between ticks")

// segment drives the pose through one segment. A ramp-down segment is never
// cut short: once authority starts to fall it falls to zero.
func (r *run) segment(ctx context.Context, index int, seg motion.Segment, release bool) error {
	s := r.s
	name := seg.Name(index)
	interruptible := seg.Authority != motion.RampDown
	if !interruptible {
		ctx = context.WithoutCancel(ctx)
	}
	s.metrics.Segment.Set(float64(index))
	s.log("Segment "+name,
		zap.Int("index", index),
		zap.Int("steps", seg.Steps),
		zap.Stringer("mode", seg.Mode),
		zap.Stringer("authority", seg.Authority),
	)

	interp := seg.Mode.Begin(r.pose, seg.Target, seg.Steps)
	r.authority.Begin(seg.Authority, seg.Steps)

	for k := range seg.Steps {
		if interruptible && ctx.Err() != nil {
			return errCancelled
		}

		interp.Step(&r.pose)
		a := r.authority.Step()

		if _, err := s.emitter.Emit(ctx, r.pose, a); err != nil {
			s.metrics.SendErrors.Inc()
			return &SendError{Segment: index, Label: name, Tick: k, Err: err}
		}
		r.frames++
		s.metrics.FramesEmitted.Inc()
		s.metrics.Authority.Set(a)
		r.publish(index, name, k, release)
		r.wait(ctx)
	}
	r.segments++
	return nil
}

func (r *run) publish(index int, label string, tick int, releasing bool) {
	s := r.s
	now := s.clock.Now()
	s.mu.Lock()
	s.state.Segment = index
	s.state.Label = label
	s.state.Tick = tick
	s.state.Frames = r.frames
	s.state.Authority = r.authority.Value()
	s.state.Pose = r.pose
	s.state.Releasing = releasing
	s.state.Timestamp = now
	st := s.state
	s.mu.Unlock()
	s.sendState(st)
}

// wait sleeps until the next tick deadline. If the loop is more than a full
// period behind, the schedule restarts from now instead of bursting to catch up.
func (r *run) wait(ctx context.Context) {
	s := r.s
	r.n++
	due := r.anchor.Add(time.Duration(r.n) * s.tick)
	now := s.clock.Now()

	if late := now.Sub(due); late > 0 {
		s.metrics.TickLateness.Observe(late.Seconds())
		if late > s.tick {
			s.metrics.TickOverruns.Inc()
			s.overrunLog.Do(func() {
				s.logger.Warn("Control loop overrun", zap.Duration("late", late), zap.Duration("tick", s.tick))
			})
			r.anchor = now
			r.n = 0
		}
		return
	}
	_ = s.clock.SleepUntil(ctx, due)
}

// interrupted releases authority after a cancellation before segment index
// could start or finish.
func (r *run) interrupted(ctx context.Context, index int) error {
	s := r.s
	cause := context.Cause(ctx)
	name := "program end"
	if index < len(r.program.Segments) {
		name = r.program.Segments[index].Name(index)
	}

	if r.authority.Value() == 0 {
		s.log("Interrupted during " + name + ", no authority held")
		return fmt.Errorf("%w during %s: %w", ErrInterrupted, name, cause)
	}

	// A ramp-down segment never returns early, so one at or after index has
	// not started yet.
	release := r.program.ReleaseIndex()
	var seg motion.Segment
	if release >= index {
		seg = r.program.Segments[release]
	} else {
		release = index
		seg = motion.Segment{
			Label:     "release",
			Target:    r.pose,
			Steps:     s.releaseSteps,
			Mode:      motion.RateClamp(),
			Authority: motion.RampDown,
		}
	}

	s.log("Interrupted during "+name+", releasing authority",
		zap.Float64("authority", r.authority.Value()),
		zap.String("release", seg.Name(release)),
	)

	r.anchor = s.clock.Now()
	r.n = 0
	if err := r.segment(context.WithoutCancel(ctx), release, seg, true); err != nil {
		return fmt.Errorf("%w during %s: release: %w", ErrInterrupted, name, err)
	}
	r.released = true
	return fmt.Errorf("%w during %s: %w", ErrInterrupted, name, cause)
}
