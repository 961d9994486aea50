package gstsource

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// pipelineElements holds the elements needed after construction.
type pipelineElements struct {
	Pipeline *gst.Pipeline
	AppSink  *app.Sink
}

// createPipeline builds (but does not start) a single-frame pipeline:
//
//	v4l2src → videoconvert → videoscale → capsfilter → appsink
func createPipeline(device string, width, height int) (*pipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsStr := rgbCaps(width, height)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, scaler, capsfilter, appsink.Element)

	if err := gst.ElementLinkMany(src, converter, scaler, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Debug("gstsource: pipeline created", "device", device, "caps", capsStr)

	return &pipelineElements{Pipeline: pipeline, AppSink: appsink}, nil
}

func rgbCaps(width, height int) string {
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", width, height)
}

// pullSample copies the next sample's bytes; GStreamer reuses the buffer.
func pullSample(sink *app.Sink) []byte {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstsource: failed to pull sample from appsink, skipping frame")
		return nil
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstsource: failed to get buffer from sample, skipping frame")
		return nil
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstsource: empty buffer received")
		return nil
	}

	out := make([]byte, len(data))
	copy(out, data)
	buffer.Unmap()
	return out
}

// checkGStreamerAvailable is a fail-fast check run at construction time.
func checkGStreamerAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("GStreamer v4l2src not available (install gstreamer1.0-plugins-good): %w", err)
	}
	elem.SetState(gst.StateNull)

	return nil
}
