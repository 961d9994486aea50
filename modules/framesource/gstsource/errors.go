package gstsource

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies GStreamer failures for telemetry and retry.
type ErrorCategory int

const (
	// ErrCategoryDevice indicates a busy, missing or disconnected camera
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryFormat indicates caps negotiation or buffer layout failures
	ErrCategoryFormat
	// ErrCategoryPermission indicates the process may not open the device
	ErrCategoryPermission
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	case ErrCategoryPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt could plausibly succeed.
func (e ErrorCategory) Retryable() bool {
	return e == ErrCategoryDevice || e == ErrCategoryUnknown
}

// captureError carries the category of a failed attempt.
type captureError struct {
	category ErrorCategory
	err      error
}

func (e *captureError) Error() string {
	return e.category.String() + ": " + e.err.Error()
}

func (e *captureError) Unwrap() error {
	return e.err
}

// ClassifyGStreamerError categorizes a GStreamer error. go-gst's GError does
// not expose the error domain, so classification is keyword based.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classifyText(gerr.Error(), gerr.DebugString())
}

func classifyText(errMsg, debug string) ErrorCategory {
	combined := strings.ToLower(errMsg + " " + debug)

	// most specific first
	switch {
	case containsAny(combined, "permission denied", "not permitted", "eacces"):
		return ErrCategoryPermission
	case containsAny(combined, "not-negotiated", "not negotiated", "caps", "format", "invalid buffer"):
		return ErrCategoryFormat
	case containsAny(combined, "busy", "no such file", "no such device", "cannot identify device",
		"could not open", "resource", "disconnected", "v4l2"):
		return ErrCategoryDevice
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
