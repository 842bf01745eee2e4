package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"sync"
)

// MockDevice implements Device for testing and for running without a camera.
// Streams yield a synthetic test pattern.
type MockDevice struct {
	// AcquireFunc replaces the default behavior when set.
	AcquireFunc func(ctx context.Context, req Request) (Stream, error)

	// Width and Height of generated frames. Zero uses the request's ideal size.
	Width, Height int

	mu       sync.Mutex
	err      error
	seq      int
	open     int
	maxOpen  int
	requests []Request
	streams  []*MockStream
}

// NewMockDevice creates a device producing width x height frames.
func NewMockDevice(width, height int) *MockDevice {
	return &MockDevice{Width: width, Height: height}
}

// SetErr makes subsequent acquisitions fail with err (nil to succeed again).
func (d *MockDevice) SetErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Acquire implements Device.
func (d *MockDevice) Acquire(ctx context.Context, req Request) (Stream, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	fn, err := d.AcquireFunc, d.err
	d.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	w, h := d.Width, d.Height
	if w == 0 || h == 0 {
		w, h = req.IdealWidth, req.IdealHeight
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	s := &MockStream{
		id:     fmt.Sprintf("mock-%d", d.seq),
		frame:  TestPattern(w, h),
		device: d,
	}
	d.streams = append(d.streams, s)
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	return s, nil
}

// AcquireCount returns how many acquisitions were attempted.
func (d *MockDevice) AcquireCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

// Requests returns every request received.
func (d *MockDevice) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Request(nil), d.requests...)
}

// Streams returns every stream handed out, in order.
func (d *MockDevice) Streams() []*MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockStream(nil), d.streams...)
}

// OpenStreams returns the number of streams not yet stopped.
func (d *MockDevice) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// MaxOpenStreams returns the peak number of simultaneously open streams.
func (d *MockDevice) MaxOpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

// MockStream is a Stream handed out by MockDevice.
type MockStream struct {
	id     string
	device *MockDevice

	mu       sync.Mutex
	frame    image.Image
	frameErr error
	stops    int
}

// ID implements Stream.
func (s *MockStream) ID() string { return s.id }

// SetFrame replaces the frame returned by Frame.
func (s *MockStream) SetFrame(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = img
}

// SetFrameErr makes Frame fail.
func (s *MockStream) SetFrameErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameErr = err
}

// Frame implements Stream.
func (s *MockStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stops > 0 {
		return nil, fmt.Errorf("stream %s stopped", s.id)
	}
	return s.frame, s.frameErr
}

// Stop implements Stream.
func (s *MockStream) Stop() error {
	s.mu.Lock()
	s.stops++
	first := s.stops == 1
	s.mu.Unlock()
	if first && s.device != nil {
		s.device.mu.Lock()
		s.device.open--
		s.device.mu.Unlock()
	}
	return nil
}

// Stopped reports whether Stop was called.
func (s *MockStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops > 0
}

// StopCount returns how many times Stop was called.
func (s *MockStream) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// TestPattern returns a w x h gradient image.
func TestPattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// MockEncoder implements Encoder for testing.
type MockEncoder struct {
	// EncodeFunc replaces the default behavior when set.
	EncodeFunc func(ctx context.Context, img image.Image, quality float64) ([]byte, error)

	// Sizes maps quality to the output length. Unlisted qualities produce 1 KiB.
	Sizes map[float64]int

	// Errs maps quality to a failure.
	Errs map[float64]error

	mu    sync.Mutex
	calls []EncodeCall
}

// EncodeCall records one Encode invocation.
type EncodeCall struct {
	Quality float64
	Width   int
	Height  int
}

// NewMockEncoder returns an encoder producing sizes[quality] bytes.
func NewMockEncoder(sizes map[float64]int) *MockEncoder {
	return &MockEncoder{Sizes: sizes, Errs: map[float64]error{}}
}

// Encode implements Encoder.
func (e *MockEncoder) Encode(ctx context.Context, img image.Image, quality float64) ([]byte, error) {
	b := img.Bounds()
	e.mu.Lock()
	e.calls = append(e.calls, EncodeCall{Quality: quality, Width: b.Dx(), Height: b.Dy()})
	fn := e.EncodeFunc
	err := e.Errs[quality]
	size, ok := e.Sizes[quality]
	e.mu.Unlock()

	if fn != nil {
		return fn(ctx, img, quality)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		size = 1024
	}
	return FakeWebP(size), nil
}

// Calls returns all recorded calls.
func (e *MockEncoder) Calls() []EncodeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]EncodeCall(nil), e.calls...)
}

// CallCount returns the number of Encode calls.
func (e *MockEncoder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// Reset clears recorded calls.
func (e *MockEncoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// FakeWebP returns size bytes starting with a RIFF/WEBP header.
func FakeWebP(size int) []byte {
	if size < 12 {
		size = 12
	}
	b := make([]byte, size)
	copy(b, "RIFF")
	binary.LittleEndian.PutUint32(b[4:], uint32(size-8))
	copy(b[8:], "WEBP")
	return b
}
