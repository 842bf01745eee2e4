package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Encoder turns an image into WebP bytes at a quality on a 0-1 scale.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, quality float64) ([]byte, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(ctx context.Context, img image.Image, quality float64) ([]byte, error)

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, img image.Image, quality float64) ([]byte, error) {
	return f(ctx, img, quality)
}

// Compressor applies the two-tier policy: encode at HighQuality and keep it
// if it fits MaxBytes, otherwise encode once at LowQuality and keep that.
type Compressor struct {
	Encoder    Encoder
	Constraint Constraint
}

// NewCompressor returns a compressor with the default constraint.
func NewCompressor(enc Encoder) *Compressor {
	return &Compressor{Encoder: enc, Constraint: DefaultConstraint()}
}

// Compress encodes surface. It makes at most two encode calls.
func (c *Compressor) Compress(ctx context.Context, surface image.Image) (*Result, error) {
	if surface == nil || surface.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %w", ErrCompressionFailed, ErrEmptyFrame)
	}
	b := surface.Bounds()

	data, err := c.encode(ctx, surface, TierHigh)
	if err != nil {
		return nil, err
	}
	if len(data) <= c.Constraint.MaxBytes {
		return newResult(data, TierHigh, c.Constraint.HighQuality, b.Dx(), b.Dy()), nil
	}

	data, err = c.encode(ctx, surface, TierLow)
	if err != nil {
		return nil, err
	}
	if len(data) > c.Constraint.MaxBytes {
		metricOverCeiling.Inc()
	}
	return newResult(data, TierLow, c.Constraint.LowQuality, b.Dx(), b.Dy()), nil
}

func (c *Compressor) encode(ctx context.Context, surface image.Image, tier Tier) ([]byte, error) {
	if c.Encoder == nil {
		return nil, fmt.Errorf("%w: no encoder", ErrCompressionFailed)
	}
	metricEncodes.WithLabelValues(tier.String()).Inc()
	data, err := c.Encoder.Encode(ctx, surface, c.Constraint.quality(tier))
	if err == nil && len(data) == 0 {
		err = errors.New("encoder returned no data")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s tier: %w", ErrCompressionFailed, tier, err)
	}
	metricEncodedBytes.WithLabelValues(tier.String()).Observe(float64(len(data)))
	return data, nil
}
