package capture

import "errors"

// Sentinel errors for the capture pipeline.
var (
	// ErrCameraUnavailable is returned when the device cannot be acquired
	// (permission denied, no hardware, device busy).
	ErrCameraUnavailable = errors.New("capture: camera unavailable")

	// ErrCompressionFailed is returned when either encode tier fails.
	ErrCompressionFailed = errors.New("capture: compression failed")

	// ErrEmptyFrame is returned when the stream yields no usable frame.
	ErrEmptyFrame = errors.New("capture: empty frame")

	// ErrNotStreaming is returned when a capture is triggered without a live stream.
	ErrNotStreaming = errors.New("capture: session is not streaming")

	// ErrStaleCapture is returned when a capture completes after the session
	// moved on (retake, close). Its result is discarded.
	ErrStaleCapture = errors.New("capture: stale capture discarded")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("capture: session closed")
)
