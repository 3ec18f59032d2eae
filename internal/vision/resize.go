package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
)

// maxImageDimension is the vision model's per-side pixel cap.
const maxImageDimension = 16383

// FitImage downscales a PNG screenshot that exceeds the model's dimension
// cap, preserving aspect with nearest-integer rounding. Images already
// within the cap are returned unchanged.
func FitImage(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vision: decode screenshot: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxImageDimension && h <= maxImageDimension {
		return data, nil
	}

	ratio := float64(maxImageDimension) / float64(max(w, h))
	newW := int(math.Round(float64(w) * ratio))
	newH := int(math.Round(float64(h) * ratio))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	out := image.NewNRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		srcY := bounds.Min.Y + y*h/newH
		for x := 0; x < newW; x++ {
			srcX := bounds.Min.X + x*w/newW
			out.Set(x, y, img.At(srcX, srcY))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("vision: encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}
