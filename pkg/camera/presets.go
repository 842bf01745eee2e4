package camera

import (
	"sort"

	"github.com/teslashibe/go-wastesnap/pkg/capture"
)

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset1080p   = "1080p"
	PresetFront   = "front"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	full := DefaultConfig()
	full.Width, full.Height = 1920, 1080

	front := DefaultConfig()
	front.FacingMode = capture.FacingUser

	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLegacy:  LegacyConfig(),
		Preset1080p:   full,
		PresetFront:   front,
	}
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	presets := Presets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset by name, or nil if not found.
func GetPreset(name string) *Config {
	cfg, ok := Presets()[name]
	if !ok {
		return nil
	}
	return &cfg
}
