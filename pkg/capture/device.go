package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// Facing modes understood by devices.
const (
	FacingEnvironment = "environment"
	FacingUser        = "user"
)

// Request describes the stream to acquire. Devices may supply less than the
// ideal resolution.
type Request struct {
	FacingMode  string `json:"facing_mode"`
	IdealWidth  int    `json:"ideal_width"`
	IdealHeight int    `json:"ideal_height"`
}

// DefaultRequest asks for the rear camera at 1280x720.
func DefaultRequest() Request {
	return Request{
		FacingMode:  FacingEnvironment,
		IdealWidth:  1280,
		IdealHeight: 720,
	}
}

// Device opens live camera streams.
type Device interface {
	Acquire(ctx context.Context, req Request) (Stream, error)
}

// Stream is a live video source.
type Stream interface {
	// ID identifies the stream; every acquisition yields a new ID.
	ID() string
	// Frame returns a snapshot of the current frame.
	Frame() (image.Image, error)
	// Stop ends all underlying tracks.
	Stop() error
}

// Handle owns one Stream and guarantees it is stopped exactly once.
// A nil *Handle is valid and already released.
type Handle struct {
	stream Stream

	mu       sync.Mutex
	released bool
	stopErr  error
}

// Acquire opens a stream on dev. Any failure is reported as ErrCameraUnavailable.
func Acquire(ctx context.Context, dev Device, req Request) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	s, err := dev.Acquire(ctx, req)
	if err != nil {
		metricAcquisitions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	if s == nil {
		metricAcquisitions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: device returned no stream", ErrCameraUnavailable)
	}
	metricAcquisitions.WithLabelValues("ok").Inc()
	return &Handle{stream: s}, nil
}

// ID returns the stream ID, or "" for a nil handle.
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.stream.ID()
}

// Frame reads the current frame. It fails once the handle is released.
func (h *Handle) Frame() (image.Image, error) {
	if h == nil {
		return nil, ErrNotStreaming
	}
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return nil, ErrNotStreaming
	}
	img, err := h.stream.Frame()
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}
	return img, nil
}

// Release stops the stream. Calling it again, or on a nil handle, is a no-op
// that returns the first stop error.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return h.stopErr
	}
	h.released = true
	h.stopErr = h.stream.Stop()
	return h.stopErr
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
