// Package gstsource captures still frames from V4L2 cameras through
// GStreamer.
//
// Each Capture builds a short-lived pipeline
//
//	v4l2src → videoconvert → videoscale → capsfilter(RGB) → appsink
//
// discards a few warm-up frames so auto-exposure settles, keeps the next
// one, and tears the pipeline down again. The booth captures at most one
// frame per second, so holding the device open between shots buys nothing
// and keeps the other facing's device locked.
package gstsource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/LeeRoiii/Photoboots/modules/framesource"
)

// Config contains device and pipeline settings.
type Config struct {
	FrontDevice   string        // e.g. /dev/video0 (empty: facing unavailable)
	BackDevice    string        // e.g. /dev/video2
	Width         int           // output width in pixels
	Height        int           // output height in pixels
	WarmupFrames  int           // frames discarded before keeping one (default: 5)
	SampleTimeout time.Duration // max wait for a frame (default: 3s)
	Retry         RetryConfig
}

func (c *Config) validate() error {
	if c.FrontDevice == "" && c.BackDevice == "" {
		return fmt.Errorf("gstsource: at least one device is required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("gstsource: invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.WarmupFrames < 0 {
		return fmt.Errorf("gstsource: warmup frames must be >= 0")
	}
	if c.WarmupFrames == 0 {
		c.WarmupFrames = 5
	}
	if c.SampleTimeout <= 0 {
		c.SampleTimeout = 3 * time.Second
	}
	if c.Retry == (RetryConfig{}) {
		c.Retry = DefaultRetryConfig()
	}
	return nil
}

// Stats contains capture counters.
type Stats struct {
	Captures         uint64
	Failures         uint64
	Retries          uint32
	ErrorsDevice     uint64
	ErrorsFormat     uint64
	ErrorsPermission uint64
	ErrorsUnknown    uint64
}

// V4L2Source implements framesource.Source on top of GStreamer.
type V4L2Source struct {
	cfg Config

	// one pipeline at a time; v4l2 devices are exclusive
	mu sync.Mutex

	captures atomic.Uint64
	failures atomic.Uint64
	retries  uint32 // atomic, shared by every RetryState
	errByCat [4]atomic.Uint64
}

// New validates cfg and verifies GStreamer is usable.
func New(cfg Config) (*V4L2Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("gstsource: %w", err)
	}

	s := &V4L2Source{cfg: cfg}

	slog.Info("gstsource: V4L2 source ready",
		"front", cfg.FrontDevice,
		"back", cfg.BackDevice,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"warmup_frames", cfg.WarmupFrames,
	)
	return s, nil
}

// Capture implements framesource.Source.
func (s *V4L2Source) Capture(ctx context.Context, req framesource.Request) (framesource.Frame, error) {
	device := s.device(req.Facing)
	if device == "" {
		s.failures.Add(1)
		return framesource.Frame{}, fmt.Errorf("gstsource: no %s camera configured: %w",
			req.Facing, framesource.ErrDeviceUnavailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.captures.Add(1)

	var frame framesource.Frame
	state := RetryState{Retries: &s.retries}
	err := RunWithRetry(ctx, func(ctx context.Context) error {
		var err error
		frame, err = s.grab(ctx, device, req)
		return err
	}, s.cfg.Retry, &state)
	if err != nil {
		s.failures.Add(1)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return framesource.Frame{}, err
		}
		return framesource.Frame{}, fmt.Errorf("gstsource: %s: %v: %w", device, err, framesource.ErrDeviceUnavailable)
	}

	return frame, nil
}

// Stats returns capture counters.
func (s *V4L2Source) Stats() Stats {
	return Stats{
		Captures:         s.captures.Load(),
		Failures:         s.failures.Load(),
		Retries:          atomic.LoadUint32(&s.retries),
		ErrorsDevice:     s.errByCat[ErrCategoryDevice].Load(),
		ErrorsFormat:     s.errByCat[ErrCategoryFormat].Load(),
		ErrorsPermission: s.errByCat[ErrCategoryPermission].Load(),
		ErrorsUnknown:    s.errByCat[ErrCategoryUnknown].Load(),
	}
}

func (s *V4L2Source) device(f framesource.Facing) string {
	if f == framesource.FacingBack {
		return s.cfg.BackDevice
	}
	return s.cfg.FrontDevice
}

// grab runs one pipeline until a frame survives warm-up.
func (s *V4L2Source) grab(ctx context.Context, device string, req framesource.Request) (framesource.Frame, error) {
	elems, err := createPipeline(device, s.cfg.Width, s.cfg.Height)
	if err != nil {
		return framesource.Frame{}, &captureError{category: ErrCategoryUnknown, err: err}
	}
	defer elems.Pipeline.SetState(gst.StateNull)

	samples := make(chan []byte, 1)
	var seen atomic.Int64
	warmup := int64(s.cfg.WarmupFrames)

	elems.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			data := pullSample(sink)
			if data == nil {
				return gst.FlowOK
			}
			if seen.Add(1) <= warmup {
				return gst.FlowOK
			}
			select {
			case samples <- data:
				return gst.FlowEOS
			default:
				return gst.FlowOK
			}
		},
	})

	if err := elems.Pipeline.SetState(gst.StatePlaying); err != nil {
		return framesource.Frame{}, s.pipelineError(elems, fmt.Errorf("start pipeline: %w", err))
	}

	timer := time.NewTimer(s.cfg.SampleTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return framesource.Frame{}, ctx.Err()
	case <-timer.C:
		return framesource.Frame{}, s.pipelineError(elems, fmt.Errorf("no frame within %s", s.cfg.SampleTimeout))
	case data := <-samples:
		img, err := rgbToImage(data, s.cfg.Width, s.cfg.Height)
		if err != nil {
			return framesource.Frame{}, &captureError{category: ErrCategoryFormat, err: err}
		}

		var out image.Image = img
		if req.Zoom > 1.0 {
			out = framesource.ApplyZoom(img, req.Zoom)
		}

		encoded, err := framesource.EncodePNG(out)
		if err != nil {
			return framesource.Frame{}, &captureError{category: ErrCategoryFormat, err: err}
		}

		frame := framesource.Frame{
			Data:      encoded,
			MIME:      "image/png",
			Width:     s.cfg.Width,
			Height:    s.cfg.Height,
			Facing:    req.Facing,
			Timestamp: time.Now(),
			TraceID:   uuid.New().String(),
		}

		slog.Debug("gstsource: frame captured",
			"device", device,
			"warmup_discarded", warmup,
			"size_bytes", len(encoded),
			"trace_id", frame.TraceID,
		)
		return frame, nil
	}
}

// pipelineError drains the pipeline bus for a GStreamer error, classifies
// it and wraps cause.
func (s *V4L2Source) pipelineError(elems *pipelineElements, cause error) error {
	category := ErrCategoryUnknown
	detail := cause.Error()

	bus := elems.Pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(10 * time.Millisecond)
		if msg == nil {
			break
		}
		if msg.Type() == gst.MessageError {
			gerr := msg.ParseError()
			category = ClassifyGStreamerError(gerr)
			detail = gerr.Error()
			slog.Error("gstsource: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
			)
			break
		}
	}

	s.errByCat[category].Add(1)
	return &captureError{category: category, err: fmt.Errorf("%w (%s)", cause, detail)}
}

// rgbToImage converts packed RGB rows into an RGBA image. GStreamer pads
// each row to a multiple of 4 bytes, so the stride comes from the buffer.
func rgbToImage(data []byte, width, height int) (*image.RGBA, error) {
	if height <= 0 || len(data) < width*height*3 {
		return nil, fmt.Errorf("short RGB buffer: %d bytes for %dx%d", len(data), width, height)
	}
	stride := len(data) / height

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := data[y*stride:]
		for x := 0; x < width; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i+0] = row[x*3+0]
			img.Pix[i+1] = row[x*3+1]
			img.Pix[i+2] = row[x*3+2]
			img.Pix[i+3] = 0xFF
		}
	}
	return img, nil
}
