package gallery

import (
	"context"
	"errors"
	"time"
)

// DefaultCollection is the key the gallery is stored under.
const DefaultCollection = "capturedImages"

var (
	// ErrIndexOutOfRange is returned for a position outside [0, Len()).
	ErrIndexOutOfRange = errors.New("gallery: index out of range")

	// ErrImageNotFound is returned when an ID is not in the gallery.
	ErrImageNotFound = errors.New("gallery: image not found")

	// ErrNotFound is returned by a Store when no collection has been saved.
	ErrNotFound = errors.New("gallery: collection not found")

	// ErrCorrupt is returned by a Store when the saved payload cannot be decoded.
	ErrCorrupt = errors.New("gallery: corrupt collection")

	// ErrStorage wraps backend write failures.
	ErrStorage = errors.New("gallery: storage failure")
)

// Image is one captured frame. Immutable once appended.
type Image struct {
	ID         string    `json:"id"`
	Data       []byte    `json:"data"`
	MIME       string    `json:"mime"`
	Facing     string    `json:"facing,omitempty"`
	Shot       int       `json:"shot,omitempty"` // 1-based index within its session
	CapturedAt time.Time `json:"captured_at"`
}

// NewImage is the input to Append; the gallery assigns the ID.
type NewImage struct {
	Data       []byte
	MIME       string
	Facing     string
	Shot       int
	CapturedAt time.Time
}

// Store persists the ordered image list under one collection name.
//
// Load returns ErrNotFound when nothing was saved yet and ErrCorrupt (wrapped)
// when the payload cannot be decoded. Save replaces the whole collection.
type Store interface {
	Load(ctx context.Context) ([]Image, error)
	Save(ctx context.Context, images []Image) error
}

// Stats contains gallery counters.
type Stats struct {
	Images       int
	Appends      uint64
	Removes      uint64
	Saves        uint64
	SaveFailures uint64
}
