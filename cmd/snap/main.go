// snap: capture one photo from the camera and write the compressed WebP.
// Useful for checking a kiosk camera and the size ceiling without the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-wastesnap/internal/log"
	"github.com/teslashibe/go-wastesnap/pkg/camera"
	"github.com/teslashibe/go-wastesnap/pkg/camera/opencv"
	"github.com/teslashibe/go-wastesnap/pkg/capture"
	"github.com/teslashibe/go-wastesnap/pkg/codec"
)

func main() {
	out := flag.String("out", "snap.webp", "Output file")
	preset := flag.String("preset", camera.PresetDefault, "Camera preset")
	device := flag.Int("device", -1, "Device index (overrides the preset)")
	facing := flag.String("facing", capture.FacingEnvironment, "environment or user")
	encoder := flag.String("encoder", "webp", "Encoder: webp (pure Go) or opencv")
	fake := flag.Bool("fake", false, "Use a synthetic camera")
	maxBytes := flag.Int("max-bytes", capture.MaxSizeBytes, "Size ceiling in bytes")
	timeout := flag.Duration("timeout", 10*time.Second, "Capture timeout")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level, "")
	logger := log.L()

	manager, err := camera.NewManagerWithPreset(*preset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v (presets: %v)\n", err, camera.PresetNames())
		os.Exit(2)
	}
	if *device >= 0 {
		cfg := manager.GetConfig()
		if *facing == capture.FacingUser {
			cfg.FrontDeviceIndex = *device
		} else {
			cfg.DeviceIndex = *device
		}
		if err := manager.SetConfig(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(2)
		}
	}

	var dev capture.Device = opencv.NewDevice(manager, logger)
	if *fake {
		dev = capture.NewMockDevice(0, 0)
	}
	var enc capture.Encoder = codec.WebP{}
	if *encoder == "opencv" {
		enc = opencv.Encoder{}
	}

	constraint := capture.DefaultConstraint()
	constraint.MaxBytes = *maxBytes

	req := manager.Request()
	req.FacingMode = *facing

	sess := capture.NewSession(dev, enc,
		capture.WithRequest(req),
		capture.WithConstraint(constraint),
		capture.WithCaptureTimeout(*timeout),
		capture.WithLogger(logger),
	)
	defer sess.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		logger.Error("camera unavailable", "error", err)
		os.Exit(1)
	}
	result, err := sess.Capture(ctx)
	if err != nil {
		logger.Error("capture failed", "error", err)
		sess.Close()
		os.Exit(1)
	}

	if err := os.WriteFile(*out, result.Bytes(), 0o644); err != nil {
		logger.Error("write failed", "path", *out, "error", err)
		os.Exit(1)
	}
	fmt.Printf("📸 %s: %dx%d, %d bytes, tier %s (q=%.1f), within ceiling: %v\n",
		*out, result.Width(), result.Height(), result.Size(), result.Tier(), result.Quality(),
		result.WithinCeiling(constraint.MaxBytes))
}
