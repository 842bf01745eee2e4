package capture

import (
	"image"

	"golang.org/x/image/draw"
)

// ScaledSize returns the surface size for a native frame: width capped at
// maxWidth, aspect ratio kept, never upscaled.
func ScaledSize(width, height, maxWidth int) (int, int) {
	if width <= maxWidth || width <= 0 {
		return width, height
	}
	h := height * maxWidth / width
	if h < 1 {
		h = 1
	}
	return maxWidth, h
}

// Rasterizer draws frames into an off-screen RGBA surface. The surface is
// reused while frame dimensions stay the same. A Rasterizer is not safe for
// concurrent use; each session owns one.
type Rasterizer struct {
	MaxWidth int

	// Scaler defaults to draw.ApproxBiLinear.
	Scaler draw.Scaler

	surface *image.RGBA
	allocs  int
}

// NewRasterizer returns a rasterizer bounded to maxWidth.
func NewRasterizer(maxWidth int) *Rasterizer {
	return &Rasterizer{MaxWidth: maxWidth}
}

// Rasterize draws frame into the surface and returns it. The returned image
// is overwritten by the next call.
func (r *Rasterizer) Rasterize(frame image.Image) (*image.RGBA, error) {
	if frame == nil {
		return nil, ErrEmptyFrame
	}
	src := frame.Bounds()
	if src.Empty() {
		return nil, ErrEmptyFrame
	}

	w, h := ScaledSize(src.Dx(), src.Dy(), r.MaxWidth)
	dst := r.surfaceFor(w, h)

	if w == src.Dx() && h == src.Dy() {
		draw.Draw(dst, dst.Bounds(), frame, src.Min, draw.Src)
		return dst, nil
	}

	scaler := r.Scaler
	if scaler == nil {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(dst, dst.Bounds(), frame, src, draw.Src, nil)
	return dst, nil
}

// Allocations reports how many surfaces have been allocated.
func (r *Rasterizer) Allocations() int { return r.allocs }

// Reset drops the surface so its memory can be collected.
func (r *Rasterizer) Reset() { r.surface = nil }

func (r *Rasterizer) surfaceFor(w, h int) *image.RGBA {
	if r.surface != nil && r.surface.Rect.Dx() == w && r.surface.Rect.Dy() == h {
		return r.surface
	}
	r.surface = image.NewRGBA(image.Rect(0, 0, w, h))
	r.allocs++
	return r.surface
}
