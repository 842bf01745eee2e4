package opencv

import (
	"context"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Encoder encodes WebP through OpenCV's imgcodecs.
type Encoder struct{}

// Encode implements capture.Encoder. quality is on a 0-1 scale.
func (Encoder) Encode(ctx context.Context, img image.Image, quality float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("opencv: image to mat: %w", err)
	}
	defer mat.Close()

	q := int(math.Round(quality * 100))
	buf, err := gocv.IMEncodeWithParams(gocv.WebpFileExt, mat, []int{gocv.IMWriteWebpQuality, q})
	if err != nil {
		return nil, fmt.Errorf("opencv: webp encode: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
