package framesource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDeviceUnavailable is returned when the camera cannot produce a frame.
var ErrDeviceUnavailable = errors.New("framesource: device unavailable")

// Zoom bounds accepted by every source.
const (
	MinZoom = 1.0
	MaxZoom = 5.0
)

// Facing selects the physical camera.
type Facing int

const (
	// FacingFront is the user-facing camera.
	FacingFront Facing = iota
	// FacingBack is the environment-facing camera.
	FacingBack
)

// String returns "front" or "back".
func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingBack:
		return "back"
	default:
		return "unknown"
	}
}

// Toggle returns the opposite facing.
func (f Facing) Toggle() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// ParseFacing accepts "front"/"user" and "back"/"environment".
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "front", "user":
		return FacingFront, nil
	case "back", "environment":
		return FacingBack, nil
	default:
		return FacingFront, fmt.Errorf("framesource: unknown facing %q (want front or back)", s)
	}
}

// Request describes the frame a caller wants.
type Request struct {
	Facing Facing
	Zoom   float64 // 1.0 means no zoom
}

// Frame is one captured still, already encoded.
type Frame struct {
	Data      []byte // encoded image bytes
	MIME      string // e.g. "image/png"
	Width     int
	Height    int
	Facing    Facing
	Timestamp time.Time
	TraceID   string
}

// Empty reports whether the frame carries no image data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// Source produces single frames on demand.
//
// Implementations must be safe for concurrent use and should honour ctx
// cancellation. Any returned error means no frame was produced.
type Source interface {
	Capture(ctx context.Context, req Request) (Frame, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, req Request) (Frame, error)

// Capture calls fn(ctx, req).
func (fn SourceFunc) Capture(ctx context.Context, req Request) (Frame, error) {
	return fn(ctx, req)
}

// ValidateZoom checks z against [MinZoom, MaxZoom].
func ValidateZoom(z float64) error {
	if z < MinZoom || z > MaxZoom {
		return fmt.Errorf("framesource: zoom %.2f out of range [%.0f, %.0f]", z, MinZoom, MaxZoom)
	}
	return nil
}
