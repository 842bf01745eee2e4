// Package capture acquires a camera frame, rasterizes it to a bounded width
// and compresses it to WebP under a byte-size ceiling using two quality tiers.
package capture

import (
	"errors"
	"fmt"
)

// Pipeline constants.
const (
	MaxWidth     = 800
	MaxSizeBytes = 300 * 1024
	QualityHigh  = 0.6
	QualityLow   = 0.4
	MIMEType     = "image/webp"
)

// Tier identifies which quality preset produced a result.
type Tier int

const (
	TierHigh Tier = iota
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "HIGH"
	case TierLow:
		return "LOW"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// MarshalText renders the tier name in JSON payloads.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Constraint bounds the output of the pipeline. MaxBytes is a target for
// the HIGH tier only; the LOW tier is accepted whatever its size.
type Constraint struct {
	MaxBytes    int     `json:"max_bytes"`
	MaxWidth    int     `json:"max_width"`
	HighQuality float64 `json:"high_quality"`
	LowQuality  float64 `json:"low_quality"`
}

// DefaultConstraint returns 300 KiB, 800 px, 0.6 and 0.4.
func DefaultConstraint() Constraint {
	return Constraint{
		MaxBytes:    MaxSizeBytes,
		MaxWidth:    MaxWidth,
		HighQuality: QualityHigh,
		LowQuality:  QualityLow,
	}
}

// Validate checks the constraint is usable.
func (c Constraint) Validate() error {
	switch {
	case c.MaxBytes <= 0:
		return errors.New("capture: max bytes must be positive")
	case c.MaxWidth <= 0:
		return errors.New("capture: max width must be positive")
	case c.HighQuality <= 0 || c.HighQuality > 1:
		return fmt.Errorf("capture: high quality %.2f out of range (0, 1]", c.HighQuality)
	case c.LowQuality <= 0 || c.LowQuality > c.HighQuality:
		return fmt.Errorf("capture: low quality %.2f out of range (0, %.2f]", c.LowQuality, c.HighQuality)
	}
	return nil
}

func (c Constraint) quality(t Tier) float64 {
	if t == TierLow {
		return c.LowQuality
	}
	return c.HighQuality
}

// Result is an encoded photo. It is immutable once produced.
type Result struct {
	data    []byte
	tier    Tier
	quality float64
	width   int
	height  int
}

func newResult(data []byte, tier Tier, quality float64, width, height int) *Result {
	return &Result{
		data:    data,
		tier:    tier,
		quality: quality,
		width:   width,
		height:  height,
	}
}

// Bytes returns a copy of the encoded image.
func (r *Result) Bytes() []byte {
	return append([]byte(nil), r.data...)
}

// Size is the encoded length in bytes.
func (r *Result) Size() int { return len(r.data) }

// Tier reports which preset produced the bytes.
func (r *Result) Tier() Tier { return r.tier }

// Quality is the encoder quality used, on a 0-1 scale.
func (r *Result) Quality() float64 { return r.quality }

// Width of the encoded image in pixels.
func (r *Result) Width() int { return r.width }

// Height of the encoded image in pixels.
func (r *Result) Height() int { return r.height }

// MIMEType is always image/webp.
func (r *Result) MIMEType() string { return MIMEType }

// WithinCeiling reports whether the result fits under maxBytes.
func (r *Result) WithinCeiling(maxBytes int) bool {
	return len(r.data) <= maxBytes
}
