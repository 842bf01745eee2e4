package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is the state of a capture session.
type Phase int

const (
	PhaseIdle          Phase = iota // no stream, no result
	PhaseStreaming                  // stream live, waiting for a trigger
	PhaseCapturing                  // rasterize and compress in flight
	PhaseCaptured                   // result held, stream released
	PhaseCaptureFailed              // transient, stream being re-acquired
	PhaseRetaken                    // transient, result dropped, stream being re-acquired
	PhaseClosed
)

var phaseNames = map[Phase]string{
	PhaseIdle:          "IDLE",
	PhaseStreaming:     "STREAMING",
	PhaseCapturing:     "CAPTURING",
	PhaseCaptured:      "CAPTURED",
	PhaseCaptureFailed: "CAPTURE_FAILED",
	PhaseRetaken:       "RETAKEN",
	PhaseClosed:        "CLOSED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Listener is notified after every phase change.
type Listener func(prev, next Phase)

// Option configures a Session.
type Option func(*Session)

// WithRequest sets the acquisition request.
func WithRequest(req Request) Option {
	return func(s *Session) { s.request = req }
}

// WithConstraint sets the compression constraint.
func WithConstraint(c Constraint) Option {
	return func(s *Session) {
		s.compressor.Constraint = c
		s.raster.MaxWidth = c.MaxWidth
	}
}

// WithCaptureTimeout bounds a single capture (frame, raster, encodes).
func WithCaptureTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session owns one device stream, one raster surface and at most one
// result. Start, Retake, Close and the commit step of Capture are serialized
// so the session never holds two streams.
type Session struct {
	id         string
	device     Device
	request    Request
	raster     *Rasterizer
	compressor *Compressor
	timeout    time.Duration
	logger     *slog.Logger

	lifecycle sync.Mutex // serializes stream ownership changes
	pipeline  sync.Mutex // guards raster surface during a capture

	mu         sync.Mutex
	phase      Phase
	handle     *Handle
	result     *Result
	generation uint64
	lastErr    error
	listeners  []Listener
}

// NewSession creates an idle session. Call Start to acquire the camera.
func NewSession(dev Device, enc Encoder, opts ...Option) *Session {
	s := &Session{
		id:         uuid.NewString(),
		device:     dev,
		request:    DefaultRequest(),
		raster:     NewRasterizer(MaxWidth),
		compressor: NewCompressor(enc),
		logger:     slog.Default(),
		phase:      PhaseIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "capture", "session", s.id)
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Result returns the held result, or nil.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Generation increments whenever the stream is replaced or the session closes.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// StreamID returns the ID of the live stream, or "".
func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle.ID()
}

// Err returns the last acquisition or capture error.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// AddListener registers l for phase changes.
func (s *Session) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start acquires the camera. A live stream is kept; any other stream is
// released first. On failure the session stays IDLE and the error wraps
// ErrCameraUnavailable.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	switch {
	case s.phase == PhaseClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.phase == PhaseStreaming && !s.handle.Released():
		s.mu.Unlock()
		return nil
	case s.phase == PhaseCaptured:
		s.mu.Unlock()
		return nil
	}
	old := s.handle
	s.handle = nil
	s.generation++
	s.mu.Unlock()

	s.release(old)
	return s.acquire(ctx)
}

// Capture reads the current frame, rasterizes and compresses it. On success
// the stream is released and the session holds the result. On failure the
// stream is re-acquired so the user can retry. If the session was retaken or
// closed while the capture ran, the result is discarded and ErrStaleCapture
// is returned.
func (s *Session) Capture(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.phase == PhaseClosed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.phase != PhaseStreaming || s.handle == nil {
		s.mu.Unlock()
		return nil, ErrNotStreaming
	}
	gen := s.generation
	h := s.handle
	notify := s.setPhaseLocked(PhaseCapturing)
	s.mu.Unlock()
	notify()

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	result, stage, err := s.run(runCtx, h)

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.generation != gen {
		closed := s.phase == PhaseClosed
		s.mu.Unlock()
		if closed {
			s.dropSurface()
		}
		metricStale.Inc()
		s.logger.Debug("discarding stale capture", "generation", gen)
		return nil, ErrStaleCapture
	}

	if err != nil {
		s.lastErr = err
		s.handle = nil
		s.generation++
		notify = s.setPhaseLocked(PhaseCaptureFailed)
		s.mu.Unlock()

		s.release(h)
		notify()
		recordFailure(stage)
		s.logger.Warn("capture failed", "stage", stage, "error", err)

		if acqErr := s.acquire(context.WithoutCancel(ctx)); acqErr != nil {
			return nil, errors.Join(err, acqErr)
		}
		return nil, err
	}

	s.result = result
	s.lastErr = nil
	s.handle = nil
	notify = s.setPhaseLocked(PhaseCaptured)
	s.mu.Unlock()

	s.release(h)
	notify()
	recordCapture(result)
	s.logger.Info("photo captured",
		"tier", result.Tier(),
		"bytes", result.Size(),
		"width", result.Width(),
		"height", result.Height(),
		"took", time.Since(start))
	return result, nil
}

// Retake drops the held result, releases any stream and acquires a fresh one.
func (s *Session) Retake(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.phase == PhaseClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.generation++
	s.result = nil
	old := s.handle
	s.handle = nil
	notify := s.setPhaseLocked(PhaseRetaken)
	s.mu.Unlock()

	s.release(old)
	notify()
	return s.acquire(ctx)
}

// Close releases the stream and discards the session. It is idempotent.
func (s *Session) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.phase == PhaseClosed {
		s.mu.Unlock()
		return nil
	}
	s.generation++
	s.result = nil
	old := s.handle
	s.handle = nil
	notify := s.setPhaseLocked(PhaseClosed)
	s.mu.Unlock()

	err := s.release(old)
	s.dropSurface()
	notify()
	return err
}

// dropSurface frees the raster surface unless a capture is still using it.
// That capture ends stale and frees it on its way out.
func (s *Session) dropSurface() {
	if !s.pipeline.TryLock() {
		return
	}
	s.raster.Reset()
	s.pipeline.Unlock()
}

// run executes frame, raster and compress. It reports the failing stage.
func (s *Session) run(ctx context.Context, h *Handle) (*Result, string, error) {
	s.pipeline.Lock()
	defer s.pipeline.Unlock()

	frame, err := h.Frame()
	if err != nil {
		return nil, "frame", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "frame", err
	}
	var surface image.Image
	surface, err = s.raster.Rasterize(frame)
	if err != nil {
		return nil, "raster", err
	}
	result, err := s.compressor.Compress(ctx, surface)
	if err != nil {
		return nil, "compress", err
	}
	return result, "", nil
}

// acquire must be called with lifecycle held and no stream owned.
func (s *Session) acquire(ctx context.Context) error {
	h, err := Acquire(ctx, s.device, s.request)

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
		notify := s.setPhaseLocked(PhaseIdle)
		s.mu.Unlock()
		notify()
		s.logger.Warn("camera unavailable", "facing", s.request.FacingMode, "error", err)
		return err
	}
	s.handle = h
	notify := s.setPhaseLocked(PhaseStreaming)
	s.mu.Unlock()
	notify()
	s.logger.Debug("stream acquired", "stream", h.ID())
	return nil
}

func (s *Session) release(h *Handle) error {
	if err := h.Release(); err != nil {
		s.logger.Warn("stream stop failed", "stream", h.ID(), "error", err)
		return err
	}
	return nil
}

// setPhaseLocked updates the phase and returns a func that notifies
// listeners. Call it with mu held and the returned func after unlocking.
func (s *Session) setPhaseLocked(next Phase) func() {
	prev := s.phase
	s.phase = next
	if prev == next || len(s.listeners) == 0 {
		return func() {}
	}
	ls := append([]Listener(nil), s.listeners...)
	return func() {
		for _, l := range ls {
			l(prev, next)
		}
	}
}
