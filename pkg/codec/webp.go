// Package codec encodes and inspects WebP images without cgo.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/gen2brain/webp"
	xwebp "golang.org/x/image/webp"
)

// ErrNotWebP is returned when data lacks the RIFF/WEBP header.
var ErrNotWebP = errors.New("codec: not a WebP image")

// WebP is a pure-Go lossy WebP encoder.
type WebP struct {
	// Method trades speed for size, 0 (fast) to 6 (slow). Zero uses 4.
	Method int
}

// Encode implements capture.Encoder. quality is on a 0-1 scale.
func (w WebP) Encode(ctx context.Context, img image.Image, quality float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if quality <= 0 || quality > 1 {
		return nil, fmt.Errorf("codec: quality %.2f out of range (0, 1]", quality)
	}
	method := w.Method
	if method == 0 {
		method = 4
	}

	var buf bytes.Buffer
	err := webp.Encode(&buf, img, webp.Options{
		Quality: int(math.Round(quality * 100)),
		Method:  method,
	})
	if err != nil {
		return nil, fmt.Errorf("codec: webp encode: %w", err)
	}
	return buf.Bytes(), nil
}

// IsWebP reports whether data starts with a RIFF....WEBP header.
func IsWebP(data []byte) bool {
	return len(data) >= 12 &&
		bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WEBP"))
}

// DetectMIME sniffs the image type from magic bytes.
func DetectMIME(data []byte) string {
	switch {
	case IsWebP(data):
		return "image/webp"
	case len(data) >= 8 && bytes.Equal(data[0:8], []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// DecodeConfig returns the dimensions of WebP bytes without decoding pixels.
func DecodeConfig(data []byte) (image.Config, error) {
	if !IsWebP(data) {
		return image.Config{}, ErrNotWebP
	}
	cfg, err := xwebp.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("codec: webp decode config: %w", err)
	}
	return cfg, nil
}
