// Package fingerprint talks to the face embedding service and turns image
// regions into face feature vectors.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// fitWithin returns the dimensions of a width x height image scaled down to fit
// within maxSize, keeping aspect ratio. Images that already fit are unchanged.
func fitWithin(width, height, maxSize int) (int, int) {
	if width <= maxSize && height <= maxSize {
		return width, height
	}
	if width > height {
		return maxSize, max(1, int(float64(height)*float64(maxSize)/float64(width)))
	}
	return max(1, int(float64(width)*float64(maxSize)/float64(height))), maxSize
}

// EncodeJPEG scales img to fit within maxSize and encodes it as JPEG.
func EncodeJPEG(img image.Image, maxSize, quality int) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("empty image %v", bounds)
	}

	var src image.Image = img
	if w, h := fitWithin(bounds.Dx(), bounds.Dy(), maxSize); w != bounds.Dx() || h != bounds.Dy() {
		resized := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		src = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
