// Package capture runs timed, multi-shot capture sessions.
//
// A session takes Shots photos. Each shot optionally fires a flash signal,
// counts down 3, 2, 1 (one tick each), asks the frame source for a frame and
// appends it to the gallery. Between shots, but not after the last, the
// sequencer pauses for one inter-shot delay. A shot whose frame cannot be
// captured is skipped without retry and still counts toward Shots.
//
// Only one session runs at a time; a second Start is rejected with
// ErrSessionBusy. Settings are copied when the session starts, so later
// changes to the caller's settings never affect an in-flight session.
// Sessions end early when their context is cancelled or Cancel is called;
// the check happens at every tick boundary.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/LeeRoiii/Photoboots/modules/eventbus"
	"github.com/LeeRoiii/Photoboots/modules/framesource"
	"github.com/LeeRoiii/Photoboots/modules/gallery"
)

// MaxShots bounds Settings.Shots.
const MaxShots = 10

// CountdownFrom is the first countdown value of every shot.
const CountdownFrom = 3

var (
	// ErrSessionBusy is returned when a session is already running.
	ErrSessionBusy = errors.New("capture: session already active")

	// ErrInvalidSettings is returned for out-of-range settings.
	ErrInvalidSettings = errors.New("capture: invalid settings")

	// ErrNoSession is returned by Wait before any session was started.
	ErrNoSession = errors.New("capture: no session")
)

// Settings are snapshotted at session start.
type Settings struct {
	Shots  int
	Flash  bool
	Facing framesource.Facing
	Zoom   float64 // 0 means 1.0
}

// Validate checks ranges and normalizes Zoom.
func (s *Settings) Validate() error {
	if s.Shots < 1 || s.Shots > MaxShots {
		return fmt.Errorf("%w: shots must be 1..%d (got %d)", ErrInvalidSettings, MaxShots, s.Shots)
	}
	if s.Zoom == 0 {
		s.Zoom = 1.0
	}
	if err := framesource.ValidateZoom(s.Zoom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// Timing holds the session's fixed delays.
type Timing struct {
	Tick       time.Duration // each countdown value (default: 1s)
	InterShot  time.Duration // pause between shots (default: 1s)
	FlashPulse time.Duration // reported flash duration, no effect on timing (default: 500ms)
}

// DefaultTiming returns the booth's standard delays.
func DefaultTiming() Timing {
	return Timing{
		Tick:       1 * time.Second,
		InterShot:  1 * time.Second,
		FlashPulse: 500 * time.Millisecond,
	}
}

// ImageSink receives captured frames. *gallery.Gallery satisfies it.
type ImageSink interface {
	Append(ctx context.Context, img gallery.NewImage) gallery.Image
}

// Result summarizes a finished session.
type Result struct {
	Settings   Settings
	Captured   []gallery.Image // in shot order
	Skipped    []int           // 1-based shots with no frame
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Stats contains sequencer counters.
type Stats struct {
	Sessions  uint64
	Rejected  uint64
	Captured  uint64
	Skipped   uint64
	Cancelled uint64
}

// Sequencer runs capture sessions one at a time.
type Sequencer struct {
	source    framesource.Source
	sink      ImageSink
	notify    eventbus.Publisher
	clock     Clock
	timing    Timing
	observers []StateObserver

	// notifyMu keeps state and session notifications in order across
	// back-to-back sessions.
	notifyMu sync.Mutex

	mu      sync.Mutex
	busy    bool
	cancel  context.CancelFunc
	current *session // active or most recent
	state   State
	stats   Stats
}

// session carries one run's completion signal and result.
type session struct {
	done   chan struct{}
	result Result
}

// Option customises a Sequencer.
type Option func(*Sequencer)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Sequencer) { s.clock = c }
}

// WithTiming replaces the default delays.
func WithTiming(t Timing) Option {
	return func(s *Sequencer) { s.timing = t }
}

// WithNotifier sets where notifications are published.
func WithNotifier(p eventbus.Publisher) Option {
	return func(s *Sequencer) { s.notify = p }
}

// WithObserver adds a state observer.
func WithObserver(o StateObserver) Option {
	return func(s *Sequencer) { s.observers = append(s.observers, o) }
}

// New creates a Sequencer.
func New(source framesource.Source, sink ImageSink, opts ...Option) (*Sequencer, error) {
	if source == nil {
		return nil, fmt.Errorf("capture: frame source is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("capture: image sink is required")
	}

	s := &Sequencer{
		source: source,
		sink:   sink,
		notify: eventbus.Discard,
		clock:  SystemClock{},
		timing: DefaultTiming(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start launches a session and returns immediately. The session stops
// early when ctx is done.
func (s *Sequencer) Start(ctx context.Context, settings Settings) error {
	_, err := s.start(ctx, settings)
	return err
}

// Run starts a session and blocks until it ends.
func (s *Sequencer) Run(ctx context.Context, settings Settings) (Result, error) {
	sess, err := s.start(ctx, settings)
	if err != nil {
		return Result{}, err
	}

	// the session honours ctx itself, so this always returns
	<-sess.done
	return sess.result, nil
}

// Wait blocks until the active session ends and returns its result. With
// no active session it returns the previous result.
func (s *Sequencer) Wait(ctx context.Context) (Result, error) {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil {
		return Result{}, ErrNoSession
	}

	select {
	case <-sess.done:
		return sess.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Sequencer) start(ctx context.Context, settings Settings) (*session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.busy {
		s.stats.Rejected++
		s.mu.Unlock()
		slog.Warn("capture: start rejected, session already active")
		return nil, ErrSessionBusy
	}
	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{done: make(chan struct{})}
	s.busy = true
	s.cancel = cancel
	s.current = sess
	s.stats.Sessions++
	s.mu.Unlock()

	go s.run(sessCtx, cancel, settings, sess)
	return sess, nil
}

// Cancel aborts the active session at its next tick boundary. No-op when
// idle.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Busy reports whether a session is active.
func (s *Sequencer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns sequencer counters.
func (s *Sequencer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sequencer) run(ctx context.Context, cancel context.CancelFunc, settings Settings, sess *session) {
	result := Result{Settings: settings, StartedAt: s.clock.Now()}

	defer func() {
		result.FinishedAt = s.clock.Now()
		s.finish(settings, sess, result)
		cancel()
		close(sess.done)

		slog.Info("capture: session finished",
			"shots", settings.Shots,
			"captured", len(result.Captured),
			"skipped", len(result.Skipped),
			"cancelled", result.Cancelled,
			"elapsed", result.FinishedAt.Sub(result.StartedAt),
		)
	}()

	slog.Info("capture: session started",
		"shots", settings.Shots,
		"flash", settings.Flash,
		"facing", settings.Facing.String(),
		"zoom", settings.Zoom,
	)
	s.notifyMu.Lock()
	s.notify.Publish(eventbus.Event{
		Kind:   eventbus.KindSessionStarted,
		Shots:  settings.Shots,
		Facing: settings.Facing.String(),
	})
	s.notifyMu.Unlock()

	for shot := 1; shot <= settings.Shots; shot++ {
		if !s.shoot(ctx, settings, shot, &result) {
			result.Cancelled = true
			return
		}

		if shot < settings.Shots {
			s.transition(State{Phase: PhaseInterShotWait, Shot: shot, Shots: settings.Shots})
			if err := s.clock.Sleep(ctx, s.timing.InterShot); err != nil {
				result.Cancelled = true
				return
			}
		}
	}
}

// shoot runs one flash/countdown/shutter cycle. It returns false when the
// session was cancelled.
func (s *Sequencer) shoot(ctx context.Context, settings Settings, shot int, result *Result) bool {
	if settings.Flash {
		s.transition(State{Phase: PhaseFlash, Shot: shot, Shots: settings.Shots})
		s.notify.Publish(eventbus.Event{
			Kind:     eventbus.KindFlash,
			Shot:     shot,
			Duration: s.timing.FlashPulse,
		})
	}

	for c := CountdownFrom; c >= 1; c-- {
		s.transition(State{Phase: PhaseCountdown, Countdown: c, Shot: shot, Shots: settings.Shots})
		if err := s.clock.Sleep(ctx, s.timing.Tick); err != nil {
			return false
		}
	}

	s.transition(State{Phase: PhaseShutter, Shot: shot, Shots: settings.Shots})

	frame, err := s.source.Capture(ctx, framesource.Request{Facing: settings.Facing, Zoom: settings.Zoom})
	if err == nil && frame.Empty() {
		err = fmt.Errorf("empty frame: %w", framesource.ErrDeviceUnavailable)
	}
	// a frame grabbed before the cancel landed is still kept
	cancelled := ctx.Err() != nil
	if cancelled && err != nil {
		return false
	}
	if err != nil {
		result.Skipped = append(result.Skipped, shot)
		slog.Warn("capture: shot skipped, no frame",
			"shot", shot,
			"shots", settings.Shots,
			"error", err,
		)
		s.notify.Publish(eventbus.Event{Kind: eventbus.KindShotSkipped, Shot: shot, Reason: err.Error()})
		return true
	}

	capturedAt := frame.Timestamp
	if capturedAt.IsZero() {
		capturedAt = s.clock.Now()
	}
	mime := frame.MIME
	if mime == "" {
		mime = "image/png"
	}

	// persistence must not be cut short by a cancel arriving mid-append
	img := s.sink.Append(context.WithoutCancel(ctx), gallery.NewImage{
		Data:       frame.Data,
		MIME:       mime,
		Facing:     settings.Facing.String(),
		Shot:       shot,
		CapturedAt: capturedAt,
	})
	result.Captured = append(result.Captured, img)

	slog.Debug("capture: shot captured", "shot", shot, "image_id", img.ID, "trace_id", frame.TraceID)
	s.notify.Publish(eventbus.Event{Kind: eventbus.KindCaptured, Shot: shot, ImageID: img.ID})
	return !cancelled
}

func (s *Sequencer) transition(st State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	st = s.setStateLocked(st)
	observers := s.observers
	s.mu.Unlock()

	for _, o := range observers {
		o.OnState(st)
	}
}

// finish ends sess. The sequencer is idle and accepts a new Start before
// session_finished is published and before any observer sees PhaseIdle.
func (s *Sequencer) finish(settings Settings, sess *session, result Result) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.busy = false
	s.cancel = nil
	sess.result = result
	s.stats.Captured += uint64(len(result.Captured))
	s.stats.Skipped += uint64(len(result.Skipped))
	if result.Cancelled {
		s.stats.Cancelled++
	}
	st := s.setStateLocked(State{Phase: PhaseIdle})
	observers := s.observers
	s.mu.Unlock()

	s.notify.Publish(eventbus.Event{
		Kind:  eventbus.KindSessionFinished,
		Shots: settings.Shots,
	})
	for _, o := range observers {
		o.OnState(st)
	}
}

func (s *Sequencer) setStateLocked(st State) State {
	st.Seq = s.state.Seq + 1
	s.state = st
	return st
}
