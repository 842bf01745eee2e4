package codec_test

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-wastesnap/pkg/capture"
	"github.com/teslashibe/go-wastesnap/pkg/codec"
)

func TestEncodeProducesDecodableWebP(t *testing.T) {
	img := capture.TestPattern(64, 48)
	data, err := codec.WebP{}.Encode(context.Background(), img, capture.QualityHigh)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !codec.IsWebP(data) {
		t.Fatal("output is not WebP")
	}
	if got := codec.DetectMIME(data); got != "image/webp" {
		t.Errorf("DetectMIME = %q", got)
	}
	cfg, err := codec.DecodeConfig(data)
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("decoded size = %dx%d, want 64x48", cfg.Width, cfg.Height)
	}
}

func TestEncodeRejectsBadQuality(t *testing.T) {
	img := capture.TestPattern(8, 8)
	for _, q := range []float64{0, -0.1, 1.5} {
		if _, err := (codec.WebP{}).Encode(context.Background(), img, q); err == nil {
			t.Errorf("quality %v: expected error", q)
		}
	}
}

func TestEncodeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := codec.WebP{}.Encode(ctx, capture.TestPattern(8, 8), 0.5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCompressorWithWebP(t *testing.T) {
	c := capture.NewCompressor(codec.WebP{Method: 1})
	surface, err := capture.NewRasterizer(capture.MaxWidth).Rasterize(capture.TestPattern(1280, 720))
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Compress(context.Background(), surface)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	// A smooth gradient compresses far below the ceiling.
	if res.Tier() != capture.TierHigh {
		t.Errorf("Tier = %v, want HIGH", res.Tier())
	}
	cfg, err := codec.DecodeConfig(res.Bytes())
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != 800 || cfg.Height != 450 {
		t.Errorf("decoded = %dx%d, want 800x450", cfg.Width, cfg.Height)
	}
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"webp", capture.FakeWebP(64), "image/webp"},
		{"png", []byte("\x89PNG\r\n\x1a\n...."), "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"riff wav", []byte("RIFF\x00\x00\x00\x00WAVE"), "application/octet-stream"},
		{"short", []byte("RI"), "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := codec.DetectMIME(tt.data); got != tt.want {
				t.Errorf("DetectMIME = %q, want %q", got, tt.want)
			}
		})
	}
	if _, err := codec.DecodeConfig([]byte("nope")); !errors.Is(err, codec.ErrNotWebP) {
		t.Errorf("DecodeConfig err = %v, want ErrNotWebP", err)
	}
}
