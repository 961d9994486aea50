// Package framesource defines where still frames come from.
//
// A Source captures exactly one frame per call, for a requested camera
// facing and zoom factor. Callers treat any error as "no image": the capture
// sequencer logs it and moves on to the next shot without retrying.
//
// Two implementations ship with the module:
//
//   - Synthetic: generates solid-colour PNG frames. Used by tests and by the
//     CLI when no camera is configured. Individual shots can be scripted to
//     fail.
//   - gstsource.V4L2Source: grabs a frame from a V4L2 device through a
//     GStreamer pipeline (requires GStreamer at runtime).
package framesource
