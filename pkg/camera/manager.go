package camera

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/teslashibe/go-wastesnap/pkg/capture"
)

// Manager holds the current camera configuration and handles updates.
// Devices read it on every acquisition, so changes apply to the next stream.
type Manager struct {
	config Config
	mu     sync.RWMutex

	// OnConfigChange is called after a successful update.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a new camera manager with default config.
func NewManager() *Manager {
	return &Manager{
		config: DefaultConfig(),
	}
}

// NewManagerWithPreset creates a manager starting from a named preset.
func NewManagerWithPreset(name string) (*Manager, error) {
	preset := GetPreset(name)
	if preset == nil {
		return nil, fmt.Errorf("unknown preset: %s", name)
	}
	return &Manager{config: *preset}, nil
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Request returns the acquisition request for the current configuration.
func (m *Manager) Request() capture.Request {
	return m.GetConfig().Request()
}

// Resolve maps a request to a device index and the resolution to ask for.
// Zero sizes in req fall back to the configured size.
func (m *Manager) Resolve(req capture.Request) (index, width, height int) {
	cfg := m.GetConfig()
	width, height = req.IdealWidth, req.IdealHeight
	if width <= 0 || height <= 0 {
		width, height = cfg.Width, cfg.Height
	}
	facing := req.FacingMode
	if facing == "" {
		facing = cfg.FacingMode
	}
	return cfg.DeviceFor(facing), width, height
}

// SetConfig updates the camera configuration.
func (m *Manager) SetConfig(cfg Config) error {
	if errors := cfg.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}

	return nil
}

// ApplyPreset replaces the configuration with a named preset, keeping the
// device indexes.
func (m *Manager) ApplyPreset(name string) error {
	preset := GetPreset(name)
	if preset == nil {
		return fmt.Errorf("unknown preset: %s", name)
	}
	cur := m.GetConfig()
	cfg := *preset
	cfg.DeviceIndex, cfg.FrontDeviceIndex = cur.DeviceIndex, cur.FrontDeviceIndex
	return m.SetConfig(cfg)
}

// intFields maps JSON keys to the integer settings UpdateConfig accepts.
var intFields = map[string]func(*Config) *int{
	"device_index":       func(c *Config) *int { return &c.DeviceIndex },
	"front_device_index": func(c *Config) *int { return &c.FrontDeviceIndex },
	"width":              func(c *Config) *int { return &c.Width },
	"height":             func(c *Config) *int { return &c.Height },
	"framerate":          func(c *Config) *int { return &c.Framerate },
	"warmup_frames":      func(c *Config) *int { return &c.WarmupFrames },
}

// UpdateConfig updates specific fields of the configuration.
// A "preset" key is applied first; other keys override it. Unknown keys and
// values of the wrong type are rejected without changing anything.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	if raw, ok := params["preset"]; ok {
		name, _ := raw.(string)
		preset := GetPreset(name)
		if preset == nil {
			return fmt.Errorf("unknown preset: %v", raw)
		}
		cfg = *preset
	}

	for key, value := range params {
		if key == "preset" {
			continue
		}
		if key == "facing_mode" {
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("facing_mode must be a string")
			}
			cfg.FacingMode = v
			continue
		}
		field, ok := intFields[key]
		if !ok {
			return fmt.Errorf("unknown setting: %s", key)
		}
		v, ok := toInt(value)
		if !ok {
			return fmt.Errorf("%s must be a whole number", key)
		}
		*field(&cfg) = v
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the current config as a map for JSON serialization.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	data, _ := json.Marshal(m.GetConfig())
	var result map[string]interface{}
	json.Unmarshal(data, &result)
	return result
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val == math.Trunc(val) {
			return int(val), true
		}
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}
