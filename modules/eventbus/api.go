package eventbus

import "github.com/LeeRoiii/Photoboots/modules/eventbus/internal/bus"

// Public API - Re-export internal types as stable contract

// Kind identifies what happened in the booth
type Kind = bus.Kind

const (
	KindCaptured         = bus.KindCaptured
	KindDeleted          = bus.KindDeleted
	KindDownloaded       = bus.KindDownloaded
	KindCameraSwitched   = bus.KindCameraSwitched
	KindSelectionIgnored = bus.KindSelectionIgnored
	KindCompositeFailed  = bus.KindCompositeFailed
	KindComposed         = bus.KindComposed
	KindFlash            = bus.KindFlash
	KindSessionStarted   = bus.KindSessionStarted
	KindSessionFinished  = bus.KindSessionFinished
	KindShotSkipped      = bus.KindShotSkipped
)

// Event is a single user-visible notification
type Event = bus.Event

// Stats contains global and per-subscriber metrics
type Stats = bus.Stats

// SubscriberStats tracks event distribution metrics
type SubscriberStats = bus.SubscriberStats

// Bus distributes events to multiple subscribers with drop-on-full policy
type Bus = bus.Bus

// Public API errors - Re-export internal errors as stable contract
var (
	ErrBusClosed          = bus.ErrBusClosed
	ErrSubscriberExists   = bus.ErrSubscriberExists
	ErrSubscriberNotFound = bus.ErrSubscriberNotFound
	ErrNilChannel         = bus.ErrNilChannel
)

// New creates a new event bus.
func New() Bus {
	return bus.New()
}

// Publisher is the write side of a Bus. Components that only emit
// notifications depend on this rather than the full Bus.
type Publisher interface {
	Publish(event Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
