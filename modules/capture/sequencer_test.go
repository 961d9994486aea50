package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LeeRoiii/Photoboots/internal/idgen"
	"github.com/LeeRoiii/Photoboots/modules/capture/capturetest"
	"github.com/LeeRoiii/Photoboots/modules/eventbus"
	"github.com/LeeRoiii/Photoboots/modules/framesource"
	"github.com/LeeRoiii/Photoboots/modules/gallery"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) Publish(e eventbus.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) ofKind(k eventbus.Kind) []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventbus.Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	seq     *Sequencer
	clock   *capturetest.ManualClock
	source  *framesource.Synthetic
	gallery *gallery.Gallery
	events  *recorder
	states  *[]State
}

func newFixture(t *testing.T, auto bool) *fixture {
	t.Helper()

	src, err := framesource.NewSynthetic(16, 12)
	if err != nil {
		t.Fatalf("NewSynthetic failed: %v", err)
	}
	g, err := gallery.Open(context.Background(), gallery.NewMemoryStore(),
		gallery.WithIDGenerator(idgen.Sequential("img-")))
	if err != nil {
		t.Fatalf("gallery.Open failed: %v", err)
	}

	clock := capturetest.NewManualClock(epoch)
	clock.SetAutoAdvance(auto)

	rec := &recorder{}
	var mu sync.Mutex
	states := []State{}

	seq, err := New(src, g,
		WithClock(clock),
		WithNotifier(rec),
		WithObserver(StateObserverFunc(func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		})),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return &fixture{seq: seq, clock: clock, source: src, gallery: g, events: rec, states: &states}
}

// drive advances a manual clock one second at a time until the session ends.
func drive(t *testing.T, f *fixture) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for f.seq.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("session did not finish")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		if f.clock.WaitForSleepers(ctx, 1) == nil {
			f.clock.Advance(time.Second)
		}
		cancel()
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	src, _ := framesource.NewSynthetic(4, 4)
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := New(src, nil); err == nil {
		t.Error("expected error for nil sink")
	}
}

func TestTwoShotSessionTakesSevenTicks(t *testing.T) {
	f := newFixture(t, true)

	result, err := f.seq.Run(context.Background(), Settings{Shots: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Captured) != 2 || f.gallery.Len() != 2 {
		t.Fatalf("expected 2 captured images, got %d (gallery %d)", len(result.Captured), f.gallery.Len())
	}

	if elapsed := f.clock.Now().Sub(epoch); elapsed != 7*time.Second {
		t.Errorf("elapsed simulated time = %v, want 7s", elapsed)
	}
	if sleeps := f.clock.Sleeps(); len(sleeps) != 7 {
		t.Errorf("expected 7 ticks, got %d: %v", len(sleeps), sleeps)
	}

	captured := f.events.ofKind(eventbus.KindCaptured)
	if len(captured) != 2 || captured[0].Shot != 1 || captured[1].Shot != 2 {
		t.Errorf("expected captured(1), captured(2), got %+v", captured)
	}
	if captured[0].ImageID != result.Captured[0].ID {
		t.Errorf("event image %q != result image %q", captured[0].ImageID, result.Captured[0].ID)
	}

	if f.seq.Busy() || f.seq.State().Phase != PhaseIdle {
		t.Errorf("expected idle sequencer, got busy=%v state=%v", f.seq.Busy(), f.seq.State())
	}
}

func TestEachShotCountsDownThreeTwoOne(t *testing.T) {
	f := newFixture(t, true)

	if _, err := f.seq.Run(context.Background(), Settings{Shots: 3}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var trace []string
	for _, s := range *f.states {
		trace = append(trace, s.String())
	}

	want := []string{
		"countdown(3) shot 1/3", "countdown(2) shot 1/3", "countdown(1) shot 1/3", "shutter shot 1/3",
		"inter_shot_wait shot 1/3",
		"countdown(3) shot 2/3", "countdown(2) shot 2/3", "countdown(1) shot 2/3", "shutter shot 2/3",
		"inter_shot_wait shot 2/3",
		"countdown(3) shot 3/3", "countdown(2) shot 3/3", "countdown(1) shot 3/3", "shutter shot 3/3",
		"idle",
	}
	if len(trace) != len(want) {
		t.Fatalf("trace length %d, want %d: %v", len(trace), len(want), trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("state %d = %q, want %q", i, trace[i], want[i])
		}
	}

	// sequence numbers strictly increase
	for i := 1; i < len(*f.states); i++ {
		if (*f.states)[i].Seq <= (*f.states)[i-1].Seq {
			t.Fatalf("state seq not increasing at %d", i)
		}
	}
}

func TestFlashDoesNotAffectTiming(t *testing.T) {
	f := newFixture(t, true)

	if _, err := f.seq.Run(context.Background(), Settings{Shots: 2, Flash: true}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	flashes := f.events.ofKind(eventbus.KindFlash)
	if len(flashes) != 2 {
		t.Fatalf("expected 2 flash events, got %d", len(flashes))
	}
	if flashes[0].Duration != 500*time.Millisecond {
		t.Errorf("flash pulse = %v, want 500ms", flashes[0].Duration)
	}
	if elapsed := f.clock.Now().Sub(epoch); elapsed != 7*time.Second {
		t.Errorf("flash changed timing: elapsed %v", elapsed)
	}

	states := *f.states
	if states[0].Phase != PhaseFlash || states[1].Phase != PhaseCountdown || states[1].Countdown != 3 {
		t.Errorf("expected flash before countdown(3), got %v then %v", states[0], states[1])
	}
}

func TestFailedShotIsSkippedButCounted(t *testing.T) {
	f := newFixture(t, true)
	f.source.FailCalls(2)

	result, err := f.seq.Run(context.Background(), Settings{Shots: 3})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Captured) != 2 || len(result.Skipped) != 1 || result.Skipped[0] != 2 {
		t.Fatalf("expected shots 1,3 captured and 2 skipped, got %+v", result)
	}
	if f.gallery.Len() != 2 {
		t.Errorf("expected 2 gallery images, got %d", f.gallery.Len())
	}
	if got := f.source.Stats().Captures; got != 3 {
		t.Errorf("failed shot must not be retried: %d capture calls", got)
	}

	captured := f.events.ofKind(eventbus.KindCaptured)
	if len(captured) != 2 || captured[0].Shot != 1 || captured[1].Shot != 3 {
		t.Errorf("unexpected captured events %+v", captured)
	}
	if skipped := f.events.ofKind(eventbus.KindShotSkipped); len(skipped) != 1 || skipped[0].Shot != 2 {
		t.Errorf("unexpected skipped events %+v", skipped)
	}
	if elapsed := f.clock.Now().Sub(epoch); elapsed != 11*time.Second {
		t.Errorf("elapsed = %v, want 11s", elapsed)
	}
}

func TestAllShotsSkipped(t *testing.T) {
	f := newFixture(t, true)
	f.source.SetUnavailable(true)

	result, err := f.seq.Run(context.Background(), Settings{Shots: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Captured) != 0 || len(result.Skipped) != 2 {
		t.Errorf("expected everything skipped, got %+v", result)
	}
	if f.seq.Busy() || f.seq.State().Phase != PhaseIdle {
		t.Error("session must end idle even when every shot fails")
	}
}

func TestEmptyFrameIsSkipped(t *testing.T) {
	g, _ := gallery.Open(context.Background(), gallery.NewMemoryStore())
	clock := capturetest.NewManualClock(epoch)
	clock.SetAutoAdvance(true)

	empty := framesource.SourceFunc(func(context.Context, framesource.Request) (framesource.Frame, error) {
		return framesource.Frame{}, nil
	})
	seq, _ := New(empty, g, WithClock(clock))

	result, _ := seq.Run(context.Background(), Settings{Shots: 1})
	if len(result.Skipped) != 1 || g.Len() != 0 {
		t.Errorf("empty frame should be skipped, got %+v", result)
	}
}

func TestSecondStartRejectedWhileBusy(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if err := f.seq.Start(ctx, Settings{Shots: 2}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := f.clock.WaitForSleepers(waitCtx, 1); err != nil {
		t.Fatalf("session never reached countdown: %v", err)
	}

	before := f.gallery.Len()
	if err := f.seq.Start(ctx, Settings{Shots: 1}); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	if f.gallery.Len() != before {
		t.Error("rejected start must not touch the gallery")
	}

	drive(t, f)

	result, err := f.seq.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if len(result.Captured) != 2 {
		t.Errorf("first session should complete normally, got %d images", len(result.Captured))
	}

	stats := f.seq.Stats()
	if stats.Sessions != 1 || stats.Rejected != 1 || stats.Captured != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	// a new session is accepted once idle
	f.clock.SetAutoAdvance(true)
	if _, err := f.seq.Run(ctx, Settings{Shots: 1}); err != nil {
		t.Errorf("expected start after idle to succeed: %v", err)
	}
}

func TestSettingsSnapshotUsedForEveryShot(t *testing.T) {
	g, _ := gallery.Open(context.Background(), gallery.NewMemoryStore())
	clock := capturetest.NewManualClock(epoch)
	clock.SetAutoAdvance(true)

	synthetic, _ := framesource.NewSynthetic(8, 8)
	var mu sync.Mutex
	var requests []framesource.Request
	src := framesource.SourceFunc(func(ctx context.Context, req framesource.Request) (framesource.Frame, error) {
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		return synthetic.Capture(ctx, req)
	})

	seq, _ := New(src, g, WithClock(clock))
	settings := Settings{Shots: 3, Facing: framesource.FacingBack, Zoom: 2}
	result, _ := seq.Run(context.Background(), settings)

	if len(requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(requests))
	}
	for i, req := range requests {
		if req.Facing != framesource.FacingBack || req.Zoom != 2 {
			t.Errorf("request %d = %+v, want back/2x", i, req)
		}
	}
	if result.Captured[0].Facing != "back" {
		t.Errorf("image facing = %q, want back", result.Captured[0].Facing)
	}
}

func TestCancelStopsAtTickBoundary(t *testing.T) {
	tests := []struct {
		name   string
		cancel func(f *fixture, ctxCancel context.CancelFunc)
	}{
		{"Cancel", func(f *fixture, _ context.CancelFunc) { f.seq.Cancel() }},
		{"context", func(_ *fixture, ctxCancel context.CancelFunc) { ctxCancel() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			ctx, ctxCancel := context.WithCancel(context.Background())
			defer ctxCancel()

			if err := f.seq.Start(ctx, Settings{Shots: 3}); err != nil {
				t.Fatalf("Start failed: %v", err)
			}

			waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			f.clock.WaitForSleepers(waitCtx, 1)

			tt.cancel(f, ctxCancel)

			result, err := f.seq.Wait(waitCtx)
			if err != nil {
				t.Fatalf("Wait failed: %v", err)
			}
			if !result.Cancelled || len(result.Captured) != 0 {
				t.Errorf("expected cancelled session with no images, got %+v", result)
			}
			if f.seq.Busy() || f.seq.State().Phase != PhaseIdle {
				t.Error("cancelled session must end idle")
			}
			if f.seq.Stats().Cancelled != 1 {
				t.Errorf("expected 1 cancelled session, got %d", f.seq.Stats().Cancelled)
			}
		})
	}
}

func TestCancelWhenIdleIsNoop(t *testing.T) {
	f := newFixture(t, true)
	f.seq.Cancel()

	if _, err := f.seq.Wait(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  bool
	}{
		{"zero shots", Settings{Shots: 0}, true},
		{"too many shots", Settings{Shots: MaxShots + 1}, true},
		{"zoom too high", Settings{Shots: 1, Zoom: 6}, true},
		{"zoom below one", Settings{Shots: 1, Zoom: 0.5}, true},
		{"defaults", Settings{Shots: 1}, false},
		{"max", Settings{Shots: MaxShots, Zoom: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.settings
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("expected ErrInvalidSettings, got %v", err)
			}
			if err == nil && s.Zoom < 1 {
				t.Errorf("zoom not normalized: %v", s.Zoom)
			}
		})
	}

	f := newFixture(t, true)
	if err := f.seq.Start(context.Background(), Settings{Shots: 0}); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("Start should validate settings, got %v", err)
	}
	if f.seq.Busy() {
		t.Error("invalid start must not mark the sequencer busy")
	}
}

func TestIdleObserverCanStartNextSession(t *testing.T) {
	f := newFixture(t, true)

	var (
		seq      *Sequencer
		once     sync.Once
		busyIdle = make(chan bool, 1)
		startErr = make(chan error, 1)
	)
	seq, err := New(f.source, f.gallery,
		WithClock(f.clock),
		WithNotifier(f.events),
		WithObserver(StateObserverFunc(func(s State) {
			if s.Phase != PhaseIdle {
				return
			}
			once.Do(func() {
				busyIdle <- seq.Busy()
				startErr <- seq.Start(context.Background(), Settings{Shots: 1})
			})
		})),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := seq.Run(context.Background(), Settings{Shots: 1}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if <-busyIdle {
		t.Error("Busy() reported true while observers saw idle")
	}
	if err := <-startErr; err != nil {
		t.Fatalf("Start from idle observer failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := seq.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if f.gallery.Len() != 2 {
		t.Errorf("expected both sessions to capture, gallery has %d", f.gallery.Len())
	}

	// session notifications never interleave across sessions
	var kinds []eventbus.Kind
	f.events.mu.Lock()
	for _, e := range f.events.events {
		if e.Kind == eventbus.KindSessionStarted || e.Kind == eventbus.KindSessionFinished {
			kinds = append(kinds, e.Kind)
		}
	}
	f.events.mu.Unlock()
	want := []eventbus.Kind{
		eventbus.KindSessionStarted, eventbus.KindSessionFinished,
		eventbus.KindSessionStarted, eventbus.KindSessionFinished,
	}
	if len(kinds) != len(want) {
		t.Fatalf("session events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("session events = %v, want %v", kinds, want)
			break
		}
	}
}

func TestSessionFinishedPublishedBeforeRunReturns(t *testing.T) {
	f := newFixture(t, true)

	if _, err := f.seq.Run(context.Background(), Settings{Shots: 1}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := f.events.ofKind(eventbus.KindSessionFinished); len(got) != 1 {
		t.Errorf("expected session_finished before Run returned, got %d", len(got))
	}
}

func TestFrameGrabbedDuringCancelIsKept(t *testing.T) {
	f := newFixture(t, true)

	var seq *Sequencer
	src := framesource.SourceFunc(func(ctx context.Context, req framesource.Request) (framesource.Frame, error) {
		frame, err := f.source.Capture(ctx, req)
		seq.Cancel()
		return frame, err
	})
	seq, err := New(src, f.gallery, WithClock(f.clock), WithNotifier(f.events))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := seq.Run(context.Background(), Settings{Shots: 3})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.Cancelled {
		t.Error("expected a cancelled session")
	}
	if len(result.Captured) != 1 || f.gallery.Len() != 1 {
		t.Errorf("grabbed frame should be persisted, captured %d, gallery %d", len(result.Captured), f.gallery.Len())
	}
	if captured := f.events.ofKind(eventbus.KindCaptured); len(captured) != 1 || captured[0].Shot != 1 {
		t.Errorf("unexpected captured events %+v", captured)
	}
	if got := f.source.Stats().Captures; got != 1 {
		t.Errorf("session should stop after the cancelled shot, %d capture calls", got)
	}
}
