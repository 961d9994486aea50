package framesource

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"
)

func TestParseFacing(t *testing.T) {
	tests := []struct {
		input   string
		want    Facing
		wantErr bool
	}{
		{"front", FacingFront, false},
		{"user", FacingFront, false},
		{"BACK", FacingBack, false},
		{"environment", FacingBack, false},
		{"side", FacingFront, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFacing(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFacing(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseFacing(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFacingToggle(t *testing.T) {
	if FacingFront.Toggle() != FacingBack || FacingBack.Toggle() != FacingFront {
		t.Error("Toggle should flip between front and back")
	}
}

func TestValidateZoom(t *testing.T) {
	for _, z := range []float64{1, 2.5, 5} {
		if err := ValidateZoom(z); err != nil {
			t.Errorf("ValidateZoom(%v) unexpected error: %v", z, err)
		}
	}
	for _, z := range []float64{0, 0.5, 5.1} {
		if err := ValidateZoom(z); err == nil {
			t.Errorf("ValidateZoom(%v) expected error", z)
		}
	}
}

func TestApplyZoomKeepsBounds(t *testing.T) {
	// left half red, right half blue
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	draw.Draw(img, image.Rect(0, 0, 20, 20), &image.Uniform{C: color.RGBA{R: 255, A: 255}}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(20, 0, 40, 20), &image.Uniform{C: color.RGBA{B: 255, A: 255}}, image.Point{}, draw.Src)

	if got := ApplyZoom(img, 1.0); got != image.Image(img) {
		t.Error("zoom 1.0 should return the input unchanged")
	}

	zoomed := ApplyZoom(img, 2.0)
	if zoomed.Bounds().Dx() != 40 || zoomed.Bounds().Dy() != 20 {
		t.Fatalf("expected 40x20, got %v", zoomed.Bounds())
	}

	// the centre crop still spans the red/blue split
	r, _, _, _ := zoomed.At(1, 10).RGBA()
	_, _, b, _ := zoomed.At(38, 10).RGBA()
	if r>>8 < 200 || b>>8 < 200 {
		t.Errorf("expected red left edge and blue right edge after zoom")
	}
}

func TestSyntheticCapture(t *testing.T) {
	src, err := NewSynthetic(32, 24)
	if err != nil {
		t.Fatalf("NewSynthetic failed: %v", err)
	}

	frame, err := src.Capture(context.Background(), Request{Facing: FacingBack, Zoom: 1})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if frame.Empty() || frame.MIME != "image/png" || frame.Facing != FacingBack {
		t.Fatalf("unexpected frame %+v", frame)
	}

	img, err := png.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		t.Fatalf("frame is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Errorf("unexpected size %v", img.Bounds())
	}
}

func TestSyntheticScriptedFailures(t *testing.T) {
	src, _ := NewSynthetic(8, 8)
	src.FailCalls(2)

	ctx := context.Background()
	req := Request{Zoom: 1}

	if _, err := src.Capture(ctx, req); err != nil {
		t.Fatalf("call 1 should succeed: %v", err)
	}
	if _, err := src.Capture(ctx, req); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("call 2 should fail with ErrDeviceUnavailable, got %v", err)
	}

	src.SetUnavailable(true)
	if _, err := src.Capture(ctx, req); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	stats := src.Stats()
	if stats.Captures != 3 || stats.Failures != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSyntheticHonoursContext(t *testing.T) {
	src, _ := NewSynthetic(8, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Capture(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewSyntheticRejectsBadSize(t *testing.T) {
	if _, err := NewSynthetic(0, 10); err == nil {
		t.Error("expected error for zero width")
	}
}
