package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStateBoxClosed is returned by Next after Close.
var ErrStateBoxClosed = errors.New("capture: state box closed")

// Phase is the sequencer's position in the per-shot protocol.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFlash
	PhaseCountdown
	PhaseShutter
	PhaseInterShotWait
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFlash:
		return "flash"
	case PhaseCountdown:
		return "countdown"
	case PhaseShutter:
		return "shutter"
	case PhaseInterShotWait:
		return "inter_shot_wait"
	default:
		return "unknown"
	}
}

// State is one observable snapshot of the sequencer.
type State struct {
	Phase     Phase
	Countdown int    // 3, 2 or 1 during PhaseCountdown; 0 otherwise
	Shot      int    // 1-based shot in progress; 0 when idle
	Shots     int    // shots requested by the active session
	Seq       uint64 // increases with every transition
}

func (s State) String() string {
	if s.Phase == PhaseCountdown {
		return fmt.Sprintf("countdown(%d) shot %d/%d", s.Countdown, s.Shot, s.Shots)
	}
	if s.Phase == PhaseIdle {
		return "idle"
	}
	return fmt.Sprintf("%s shot %d/%d", s.Phase, s.Shot, s.Shots)
}

// StateObserver receives every transition synchronously on the session
// goroutine. Implementations must not block.
type StateObserver interface {
	OnState(State)
}

// StateObserverFunc adapts a function to StateObserver.
type StateObserverFunc func(State)

// OnState calls fn(s).
func (fn StateObserverFunc) OnState(s State) { fn(s) }

// StateBox holds the latest State for a presentation layer. A new state
// overwrites the previous one; readers that fall behind see only the most
// recent transition.
type StateBox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	state  State
	seq    uint64
	closed bool
}

// NewStateBox returns a box holding the idle state.
func NewStateBox() *StateBox {
	b := &StateBox{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// OnState implements StateObserver.
func (b *StateBox) OnState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.state = s
	b.seq++
	b.cond.Broadcast()
}

// Latest returns the current state and its box sequence number.
func (b *StateBox) Latest() (State, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.seq
}

// Next blocks until a state newer than after is available.
func (b *StateBox) Next(ctx context.Context, after uint64) (State, uint64, error) {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.seq <= after && !b.closed {
		if err := ctx.Err(); err != nil {
			return State{}, b.seq, err
		}
		b.cond.Wait()
	}
	if b.seq <= after {
		return State{}, b.seq, ErrStateBoxClosed
	}
	return b.state, b.seq, nil
}

// Close wakes every blocked reader.
func (b *StateBox) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}
