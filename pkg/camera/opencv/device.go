// Package opencv implements the capture device and WebP encoder on top of
// OpenCV through gocv. It needs OpenCV installed at build time.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-wastesnap/pkg/camera"
	"github.com/teslashibe/go-wastesnap/pkg/capture"
)

// Device opens OpenCV video captures. The camera manager is read on every
// acquisition so config changes apply to the next stream.
type Device struct {
	manager *camera.Manager
	logger  *slog.Logger
	seq     atomic.Uint64
}

// NewDevice creates a device bound to the camera manager.
func NewDevice(manager *camera.Manager, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{manager: manager, logger: logger.With("component", "opencv")}
}

// Acquire implements capture.Device.
func (d *Device) Acquire(ctx context.Context, req capture.Request) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	index, width, height := d.manager.Resolve(req)
	cfg := d.manager.GetConfig()

	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %d is not open", index)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	s := &stream{
		id:  fmt.Sprintf("cam%d-%d", index, d.seq.Add(1)),
		vc:  vc,
		mat: gocv.NewMat(),
	}

	// The first frames are often dark or missing while the sensor starts.
	for i := 0; i <= cfg.WarmupFrames; i++ {
		if err := ctx.Err(); err != nil {
			s.Stop()
			return nil, err
		}
		if ok := vc.Read(&s.mat); !ok || s.mat.Empty() {
			s.Stop()
			return nil, fmt.Errorf("camera %d returned no frames", index)
		}
	}

	d.logger.Info("camera opened",
		"index", index,
		"facing", req.FacingMode,
		"width", s.mat.Cols(),
		"height", s.mat.Rows())
	return s, nil
}

type stream struct {
	id string

	mu      sync.Mutex
	vc      *gocv.VideoCapture
	mat     gocv.Mat
	stopped bool
}

func (s *stream) ID() string { return s.id }

func (s *stream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errors.New("opencv: stream stopped")
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, capture.ErrEmptyFrame
	}
	return s.mat.ToImage()
}

func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	err := s.vc.Close()
	if cerr := s.mat.Close(); err == nil {
		err = cerr
	}
	return err
}
