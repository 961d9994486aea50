package framesource

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var palette = []color.RGBA{
	{R: 0xE5, G: 0x39, B: 0x35, A: 0xFF},
	{R: 0x1E, G: 0x88, B: 0xE5, A: 0xFF},
	{R: 0x43, G: 0xA0, B: 0x47, A: 0xFF},
	{R: 0xFB, G: 0xC0, B: 0x2D, A: 0xFF},
	{R: 0x8E, G: 0x24, B: 0xAA, A: 0xFF},
}

// SyntheticStats reports how many captures were attempted and failed.
type SyntheticStats struct {
	Captures uint64
	Failures uint64
}

// Synthetic generates solid-colour PNG frames. The colour cycles with every
// successful capture; the front camera draws a centre marker so facings are
// distinguishable.
type Synthetic struct {
	width  int
	height int

	mu       sync.Mutex
	seq      uint64
	failAll  bool
	failOn   map[uint64]bool // 1-based call numbers that fail
	captures uint64
	failures uint64
}

// NewSynthetic creates a synthetic source producing width x height frames.
func NewSynthetic(width, height int) (*Synthetic, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("framesource: invalid synthetic size %dx%d", width, height)
	}
	return &Synthetic{
		width:  width,
		height: height,
		failOn: make(map[uint64]bool),
	}, nil
}

// FailCalls makes the given 1-based Capture calls return ErrDeviceUnavailable.
func (s *Synthetic) FailCalls(calls ...uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range calls {
		s.failOn[c] = true
	}
}

// SetUnavailable makes every Capture fail (or succeed again).
func (s *Synthetic) SetUnavailable(v bool) {
	s.mu.Lock()
	s.failAll = v
	s.mu.Unlock()
}

// Capture implements Source.
func (s *Synthetic) Capture(ctx context.Context, req Request) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	s.captures++
	call := s.captures
	if s.failAll || s.failOn[call] {
		s.failures++
		s.mu.Unlock()
		return Frame{}, fmt.Errorf("synthetic call %d: %w", call, ErrDeviceUnavailable)
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	fill := palette[(seq-1)%uint64(len(palette))]
	draw.Draw(img, img.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	if req.Facing == FacingFront {
		mw, mh := s.width/4, s.height/4
		marker := image.Rect(s.width/2-mw/2, s.height/2-mh/2, s.width/2+mw/2, s.height/2+mh/2)
		draw.Draw(img, marker, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	}

	var out image.Image = img
	if req.Zoom > 1.0 {
		out = ApplyZoom(img, req.Zoom)
	}

	data, err := EncodePNG(out)
	if err != nil {
		return Frame{}, err
	}

	frame := Frame{
		Data:      data,
		MIME:      "image/png",
		Width:     s.width,
		Height:    s.height,
		Facing:    req.Facing,
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
	}

	slog.Debug("framesource: synthetic frame",
		"seq", seq,
		"facing", req.Facing.String(),
		"zoom", req.Zoom,
		"size_bytes", len(data),
		"trace_id", frame.TraceID,
	)

	return frame, nil
}

// Stats returns capture counters.
func (s *Synthetic) Stats() SyntheticStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SyntheticStats{Captures: s.captures, Failures: s.failures}
}
