package camera

import (
	"errors"
	"testing"

	"github.com/teslashibe/go-wastesnap/pkg/capture"
)

func TestDefaultConfigMatchesCaptureRequest(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default invalid: %v", errs)
	}
	if cfg.Request() != capture.DefaultRequest() {
		t.Errorf("Request = %+v, want %+v", cfg.Request(), capture.DefaultRequest())
	}
}

func TestPresetsAreValid(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			cfg := GetPreset(name)
			if cfg == nil {
				t.Fatal("preset missing")
			}
			if errs := cfg.Validate(); len(errs) != 0 {
				t.Errorf("invalid: %v", errs)
			}
		})
	}
	if GetPreset("nope") != nil {
		t.Error("unknown preset should be nil")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FacingMode = "sideways"
	cfg.Width = 10
	cfg.WarmupFrames = -1
	if errs := cfg.Validate(); len(errs) != 3 {
		t.Errorf("errors = %v, want 3", errs)
	}
}

func TestResolve(t *testing.T) {
	m := NewManager()
	m.SetConfig(Config{
		DeviceIndex: 2, FrontDeviceIndex: 5, FacingMode: capture.FacingEnvironment,
		Width: 1920, Height: 1080, Framerate: 30,
	})

	tests := []struct {
		name      string
		req       capture.Request
		wantIndex int
		wantW     int
		wantH     int
	}{
		{"rear ideal", capture.DefaultRequest(), 2, 1280, 720},
		{"front", capture.Request{FacingMode: capture.FacingUser, IdealWidth: 640, IdealHeight: 480}, 5, 640, 480},
		{"empty uses config", capture.Request{}, 2, 1920, 1080},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, w, h := m.Resolve(tt.req)
			if idx != tt.wantIndex || w != tt.wantW || h != tt.wantH {
				t.Errorf("Resolve = (%d, %d, %d), want (%d, %d, %d)", idx, w, h, tt.wantIndex, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestUpdateConfig(t *testing.T) {
	m := NewManager()
	var applied Config
	m.OnConfigChange = func(cfg Config) error {
		applied = cfg
		return nil
	}

	err := m.UpdateConfig(map[string]interface{}{
		"preset": PresetFront,
		"width":  float64(1920),
		"height": float64(1080),
	})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	got := m.GetConfig()
	if got.FacingMode != capture.FacingUser || got.Width != 1920 || got.Height != 1080 {
		t.Errorf("config = %+v", got)
	}
	if applied != got {
		t.Error("OnConfigChange should receive the new config")
	}

	if err := m.UpdateConfig(map[string]interface{}{"preset": "nope"}); err == nil {
		t.Error("unknown preset should fail")
	}
	if err := m.UpdateConfig(map[string]interface{}{"width": 5}); err == nil {
		t.Error("invalid width should fail")
	}
	if m.GetConfig().Width != 1920 {
		t.Error("failed update must not change the config")
	}
}

func TestSetConfigCallbackError(t *testing.T) {
	m := NewManager()
	boom := errors.New("device busy")
	m.OnConfigChange = func(Config) error { return boom }
	if err := m.SetConfig(LegacyConfig()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped callback error", err)
	}
}

func TestNewManagerWithPreset(t *testing.T) {
	m, err := NewManagerWithPreset(Preset1080p)
	if err != nil {
		t.Fatal(err)
	}
	if m.GetConfig().Width != 1920 {
		t.Errorf("Width = %d", m.GetConfig().Width)
	}
	if _, err := NewManagerWithPreset("8k"); err == nil {
		t.Error("expected error")
	}
	if m.GetConfigJSON()["facing_mode"] != "environment" {
		t.Errorf("json = %v", m.GetConfigJSON())
	}
}

func TestApplyPresetKeepsDeviceIndexes(t *testing.T) {
	m := NewManager()
	cfg := m.GetConfig()
	cfg.DeviceIndex, cfg.FrontDeviceIndex = 2, 3
	if err := m.SetConfig(cfg); err != nil {
		t.Fatal(err)
	}

	if err := m.ApplyPreset(PresetLegacy); err != nil {
		t.Fatal(err)
	}
	got := m.GetConfig()
	if got.Width != 640 || got.DeviceIndex != 2 || got.FrontDeviceIndex != 3 {
		t.Errorf("config = %+v", got)
	}
	if err := m.ApplyPreset("nope"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestUpdateConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]interface{}
	}{
		{"unknown key", map[string]interface{}{"zoom": 2}},
		{"string width", map[string]interface{}{"width": "wide"}},
		{"fractional fps", map[string]interface{}{"framerate": 29.97}},
		{"numeric facing", map[string]interface{}{"facing_mode": 1}},
		{"numeric preset", map[string]interface{}{"preset": 1080}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			before := m.GetConfig()
			if err := m.UpdateConfig(tt.params); err == nil {
				t.Error("expected error")
			}
			if m.GetConfig() != before {
				t.Error("config changed on rejected update")
			}
		})
	}
}
