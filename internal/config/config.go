// Package config loads wastesnap configuration from defaults, an optional
// YAML file and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the server and the capture pipeline.
const (
	DefaultPort       = 8080
	DefaultBucket     = "submission-photos"
	DefaultTable      = "submissions"
	DefaultAdminRole  = "admin"
	DefaultSessionTTL = 15 * time.Minute
	DefaultEncoder    = "webp"
)

// Config is the complete runtime configuration.
type Config struct {
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Backend BackendConfig `yaml:"backend"`
	Camera  CameraConfig  `yaml:"camera"`
	Capture CaptureConfig `yaml:"capture"`
	Sheets  SheetsConfig  `yaml:"sheets"`

	// SessionTTL bounds how long an abandoned capture session holds the camera.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// BackendConfig points at the hosted auth, table and object store.
type BackendConfig struct {
	URL       string `yaml:"url"`
	AnonKey   string `yaml:"anon_key"`
	Bucket    string `yaml:"bucket"`
	Table     string `yaml:"table"`
	AdminRole string `yaml:"admin_role"`
	// JWTSecret enables local signature checks of admin tokens.
	JWTSecret string `yaml:"jwt_secret"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	Preset           string `yaml:"preset"`
	DeviceIndex      int    `yaml:"device_index"`
	FrontDeviceIndex int    `yaml:"front_device_index"`
	Fake             bool   `yaml:"fake"`
}

// CaptureConfig overrides the compression constraint.
type CaptureConfig struct {
	Encoder      string        `yaml:"encoder"` // "webp" (pure Go) or "opencv"
	MaxWidth     int           `yaml:"max_width"`
	MaxSizeBytes int           `yaml:"max_size_bytes"`
	QualityHigh  float64       `yaml:"quality_high"`
	QualityLow   float64       `yaml:"quality_low"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SheetsConfig enables the Google Sheets export.
type SheetsConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	TokenPath    string `yaml:"token_path"`
}

// Enabled reports whether OAuth credentials are present.
func (s SheetsConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:     DefaultPort,
		LogLevel: "info",
		Backend: BackendConfig{
			Bucket:    DefaultBucket,
			Table:     DefaultTable,
			AdminRole: DefaultAdminRole,
		},
		Camera: CameraConfig{
			Preset:           "default",
			FrontDeviceIndex: 1,
		},
		Capture: CaptureConfig{
			Encoder:      DefaultEncoder,
			MaxWidth:     800,
			MaxSizeBytes: 300 * 1024,
			QualityHigh:  0.6,
			QualityLow:   0.4,
		},
		Sheets: SheetsConfig{
			RedirectURL: "http://localhost:8080/api/admin/sheets/callback",
			TokenPath:   "sheets_token.json",
		},
		SessionTTL: DefaultSessionTTL,
	}
}

// Load returns defaults merged with the YAML file at path (if non-empty) and
// then with environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("WASTESNAP_CONFIG")
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("config: %s", errs[0])
	}
	return cfg, nil
}

// mergeFile decodes YAML onto the current values; absent keys keep their value.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing YAML: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() error {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.Backend.URL, "BACKEND_URL")
	setString(&c.Backend.AnonKey, "BACKEND_ANON_KEY")
	setString(&c.Backend.Bucket, "BACKEND_BUCKET")
	setString(&c.Backend.Table, "BACKEND_TABLE")
	setString(&c.Backend.JWTSecret, "BACKEND_JWT_SECRET")
	setString(&c.Camera.Preset, "CAMERA_PRESET")
	setString(&c.Capture.Encoder, "ENCODER")
	setString(&c.Sheets.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Sheets.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Sheets.RedirectURL, "GOOGLE_REDIRECT_URL")

	if err := setInt(&c.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Camera.DeviceIndex, "CAMERA_DEVICE"); err != nil {
		return err
	}
	if err := setInt(&c.Camera.FrontDeviceIndex, "CAMERA_FRONT_DEVICE"); err != nil {
		return err
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}
	if v := os.Getenv("FAKE_CAMERA"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: FAKE_CAMERA: %w", err)
		}
		c.Camera.Fake = b
	}
	return nil
}

// Validate returns every problem found, or nil.
func (c Config) Validate() []string {
	var errs []string
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port must be 1-65535, got %d", c.Port))
	}
	if c.Capture.MaxWidth < 1 {
		errs = append(errs, "capture.max_width must be positive")
	}
	if c.Capture.MaxSizeBytes < 1 {
		errs = append(errs, "capture.max_size_bytes must be positive")
	}
	if c.Capture.QualityHigh <= 0 || c.Capture.QualityHigh > 1 {
		errs = append(errs, "capture.quality_high must be in (0, 1]")
	}
	if c.Capture.QualityLow <= 0 || c.Capture.QualityLow > c.Capture.QualityHigh {
		errs = append(errs, "capture.quality_low must be in (0, quality_high]")
	}
	switch c.Capture.Encoder {
	case "webp", "opencv":
	default:
		errs = append(errs, fmt.Sprintf("capture.encoder must be webp or opencv, got %q", c.Capture.Encoder))
	}
	if c.Backend.Bucket == "" || c.Backend.Table == "" {
		errs = append(errs, "backend.bucket and backend.table are required")
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, "session_ttl must be positive")
	}
	return errs
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}
