// wastesnap: kiosk server for the waste survey intake flow.
// Serves the form, photo capture and admin dashboard APIs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-wastesnap/internal/config"
	"github.com/teslashibe/go-wastesnap/internal/log"
	"github.com/teslashibe/go-wastesnap/pkg/admin"
	"github.com/teslashibe/go-wastesnap/pkg/backend"
	"github.com/teslashibe/go-wastesnap/pkg/camera"
	"github.com/teslashibe/go-wastesnap/pkg/camera/opencv"
	"github.com/teslashibe/go-wastesnap/pkg/capture"
	"github.com/teslashibe/go-wastesnap/pkg/codec"
	"github.com/teslashibe/go-wastesnap/pkg/export"
	"github.com/teslashibe/go-wastesnap/pkg/intake"
	"github.com/teslashibe/go-wastesnap/pkg/submission"
	"github.com/teslashibe/go-wastesnap/pkg/web"
)

var version = "1.0.0"

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogFormat)
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting wastesnap", "version", version, "port", cfg.Port, "encoder", cfg.Capture.Encoder, "fake_camera", cfg.Camera.Fake)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// parseFlags loads the config file and environment, then applies flags.
func parseFlags() (config.Config, error) {
	path := flag.String("config", "", "YAML config file (overrides WASTESNAP_CONFIG env var)")
	port := flag.Int("port", 0, "HTTP port (overrides PORT env var)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	fake := flag.Bool("fake-camera", false, "Use a synthetic camera instead of OpenCV")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return cfg, err
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *fake {
		cfg.Camera.Fake = true
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, errors.New(errs[0])
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	manager, err := newCameraManager(cfg.Camera)
	if err != nil {
		return err
	}

	constraint := capture.Constraint{
		MaxBytes:    cfg.Capture.MaxSizeBytes,
		MaxWidth:    cfg.Capture.MaxWidth,
		HighQuality: cfg.Capture.QualityHigh,
		LowQuality:  cfg.Capture.QualityLow,
	}
	if err := constraint.Validate(); err != nil {
		return err
	}

	client, err := backend.New(cfg.Backend.URL, cfg.Backend.AnonKey, backend.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("backend: %w (set BACKEND_URL and BACKEND_ANON_KEY)", err)
	}

	drafts := intake.NewMemoryStore(cfg.SessionTTL)
	auth := admin.NewAuthenticator(client,
		admin.WithRole(cfg.Backend.AdminRole),
		admin.WithJWTSecret(cfg.Backend.JWTSecret),
		admin.WithLogger(logger),
	)

	opts := web.Options{
		Device:         newDevice(cfg.Camera, manager, logger),
		Encoder:        newEncoder(cfg.Capture.Encoder),
		Constraint:     constraint,
		CaptureTimeout: cfg.Capture.Timeout,
		Camera:         manager,
		Drafts:         drafts,
		Submissions: submission.NewService(client, drafts,
			submission.WithBucket(cfg.Backend.Bucket),
			submission.WithTable(cfg.Backend.Table),
			submission.WithLogger(logger),
		),
		Admin: auth,
		AdminBackend: func(token string) submission.Backend {
			return auth.Client(token)
		},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}

	if cfg.Sheets.Enabled() {
		sheets, err := export.NewSheets(export.SheetsConfig{
			ClientID:     cfg.Sheets.ClientID,
			ClientSecret: cfg.Sheets.ClientSecret,
			RedirectURL:  cfg.Sheets.RedirectURL,
			TokenPath:    cfg.Sheets.TokenPath,
		}, logger)
		if err != nil {
			return err
		}
		opts.Sheets = sheets
		logger.Info("google sheets export enabled", "connected", sheets.Connected())
	}

	return web.NewServer(opts).Run(ctx, fmt.Sprintf(":%d", cfg.Port))
}

func newCameraManager(cfg config.CameraConfig) (*camera.Manager, error) {
	manager := camera.NewManager()
	cc := manager.GetConfig()
	cc.DeviceIndex = cfg.DeviceIndex
	cc.FrontDeviceIndex = cfg.FrontDeviceIndex
	if err := manager.SetConfig(cc); err != nil {
		return nil, err
	}
	if err := manager.ApplyPreset(cfg.Preset); err != nil {
		return nil, err
	}
	return manager, nil
}

func newDevice(cfg config.CameraConfig, manager *camera.Manager, logger *slog.Logger) capture.Device {
	if cfg.Fake {
		logger.Warn("using synthetic camera")
		return capture.NewMockDevice(0, 0)
	}
	return opencv.NewDevice(manager, logger)
}

func newEncoder(name string) capture.Encoder {
	if name == "opencv" {
		return opencv.Encoder{}
	}
	return codec.WebP{}
}
