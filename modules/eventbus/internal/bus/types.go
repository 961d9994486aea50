package bus

import (
	"errors"
	"fmt"
	"time"
)

// Internal errors - mapped to public errors in eventbus package
var (
	ErrBusClosed          = errors.New("eventbus: bus is closed")
	ErrSubscriberExists   = errors.New("eventbus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("eventbus: subscriber not found")
	ErrNilChannel         = errors.New("eventbus: nil channel provided")
)

// Kind identifies what happened in the booth.
type Kind int

const (
	KindCaptured Kind = iota
	KindDeleted
	KindDownloaded
	KindCameraSwitched
	KindSelectionIgnored
	KindCompositeFailed
	KindComposed
	KindFlash
	KindSessionStarted
	KindSessionFinished
	KindShotSkipped
)

var kindNames = map[Kind]string{
	KindCaptured:         "captured",
	KindDeleted:          "deleted",
	KindDownloaded:       "downloaded",
	KindCameraSwitched:   "camera_switched",
	KindSelectionIgnored: "selection_ignored",
	KindCompositeFailed:  "composite_failed",
	KindComposed:         "composed",
	KindFlash:            "flash",
	KindSessionStarted:   "session_started",
	KindSessionFinished:  "session_finished",
	KindShotSkipped:      "shot_skipped",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the kind by name so JSON payloads stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is a single user-visible notification.
type Event struct {
	Kind      Kind          `json:"kind"`
	Shot      int           `json:"shot,omitempty"` // 1-based shot index within the session
	Shots     int           `json:"shots,omitempty"`
	ImageID   string        `json:"image_id,omitempty"`
	Position  int           `json:"position,omitempty"`
	Facing    string        `json:"facing,omitempty"`
	Path      string        `json:"path,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Message returns the short human text shown for the event.
func (e Event) Message() string {
	switch e.Kind {
	case KindCaptured:
		return fmt.Sprintf("Photo %d captured!", e.Shot)
	case KindDeleted:
		return "Image deleted!"
	case KindDownloaded:
		return "Image downloaded!"
	case KindCameraSwitched:
		return "Camera switched!"
	case KindSelectionIgnored:
		return "Selection is full"
	case KindCompositeFailed:
		return "Composite failed: " + e.Reason
	case KindComposed:
		return "Composite ready!"
	case KindFlash:
		return "Flash!"
	case KindSessionStarted:
		return fmt.Sprintf("Taking %d photos", e.Shots)
	case KindSessionFinished:
		return "Session finished"
	case KindShotSkipped:
		return fmt.Sprintf("Photo %d skipped", e.Shot)
	default:
		return e.Kind.String()
	}
}

// SubscriberStats tracks event distribution metrics
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// Stats contains global and per-subscriber metrics.
type Stats struct {
	TotalPublished uint64
	TotalSent      uint64
	TotalDropped   uint64
	Subscribers    map[string]SubscriberStats
}

// Bus distributes events to multiple subscribers
type Bus interface {
	Subscribe(id string, ch chan<- Event) error
	Unsubscribe(id string) error
	Publish(event Event)
	Stats() Stats
	Close()
}
