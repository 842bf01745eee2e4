// Package camera holds the runtime-configurable camera settings used to
// open capture streams. Settings can be changed through the camera API.
package camera

import "github.com/teslashibe/go-wastesnap/pkg/capture"

// Config holds all camera configuration parameters.
type Config struct {
	// === Device selection ===
	DeviceIndex      int    `json:"device_index"`       // rear ("environment") camera
	FrontDeviceIndex int    `json:"front_device_index"` // front ("user") camera
	FacingMode       string `json:"facing_mode"`        // "environment" or "user"

	// === Ideal stream resolution ===
	// The device may supply less; frames are downscaled to 800 px anyway.
	Width     int `json:"width"`
	Height    int `json:"height"`
	Framerate int `json:"framerate"`

	// WarmupFrames are read and dropped after opening so auto exposure settles.
	WarmupFrames int `json:"warmup_frames"`
}

// Limits accepted by Validate.
const (
	MaxWidth        = 4096
	MaxHeight       = 2160
	MaxWarmupFrames = 30
)

// DefaultConfig requests the rear camera at 1280x720.
func DefaultConfig() Config {
	return Config{
		DeviceIndex:      0,
		FrontDeviceIndex: 1,
		FacingMode:       capture.FacingEnvironment,
		Width:            1280,
		Height:           720,
		Framerate:        30,
		WarmupFrames:     3,
	}
}

// LegacyConfig returns a 640x480 configuration for older webcams.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.DeviceIndex < 0 || c.FrontDeviceIndex < 0 {
		errors = append(errors, "device indexes must not be negative")
	}
	if c.FacingMode != capture.FacingEnvironment && c.FacingMode != capture.FacingUser {
		errors = append(errors, "facing_mode must be environment or user")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.WarmupFrames < 0 || c.WarmupFrames > MaxWarmupFrames {
		errors = append(errors, "warmup_frames must be between 0 and 30")
	}

	return errors
}

// Request converts the config into an acquisition request.
func (c Config) Request() capture.Request {
	return capture.Request{
		FacingMode:  c.FacingMode,
		IdealWidth:  c.Width,
		IdealHeight: c.Height,
	}
}

// DeviceFor maps a facing mode to a device index. Unknown modes use the rear camera.
func (c Config) DeviceFor(facing string) int {
	if facing == capture.FacingUser {
		return c.FrontDeviceIndex
	}
	return c.DeviceIndex
}
