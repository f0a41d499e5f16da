// Package facematch turns a single frame into the set of identities seen in it.
package facematch

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// Detector finds candidate face regions in a frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// Encoder turns a region into a feature vector. A nil vector with a nil
// error means no face was found in the region.
type Encoder interface {
	Encode(ctx context.Context, img image.Image) ([]float32, error)
}

// Gallery resolves a feature vector to its nearest known identity.
type Gallery interface {
	Match(query []float32) (identity.Label, float64)
}

// Detection is one matched region, kept for the display overlay.
type Detection struct {
	Rect     image.Rectangle
	Label    identity.Label
	Distance float64
}

// Result is the outcome of observing one frame.
type Result struct {
	Observed   identity.Set
	Detections []Detection
}

// Options tunes a FrameMatcher. Zero values fall back to defaults.
type Options struct {
	Threshold    float64
	FrameTimeout time.Duration
}

// FrameMatcher observes frames against a gallery.
type FrameMatcher struct {
	detector  Detector
	encoder   Encoder
	gallery   Gallery
	threshold float64
	timeout   time.Duration
}

// NewFrameMatcher creates a matcher. A nil detector treats the whole frame
// as one region.
func NewFrameMatcher(detector Detector, encoder Encoder, gallery Gallery, opts Options) *FrameMatcher {
	if detector == nil {
		detector = FullFrameDetector{}
	}
	if opts.Threshold <= 0 {
		opts.Threshold = constants.DefaultDistanceThreshold
	}
	return &FrameMatcher{
		detector:  detector,
		encoder:   encoder,
		gallery:   gallery,
		threshold: opts.Threshold,
		timeout:   opts.FrameTimeout,
	}
}

// Threshold returns the acceptance threshold.
func (m *FrameMatcher) Threshold() float64 {
	return m.threshold
}

// Classify applies the acceptance threshold to a gallery match. The
// threshold is exclusive: a distance equal to it is Unknown.
func (m *FrameMatcher) Classify(label identity.Label, distance float64) identity.Label {
	if distance < m.threshold {
		return label
	}
	return identity.Unknown
}

// Observe detects, encodes and matches every face region in img. Regions
// without an encoding are skipped. Any detector or encoder error fails the
// whole frame so the caller can leave presence untouched.
func (m *FrameMatcher) Observe(ctx context.Context, img image.Image) (Result, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	res := Result{Observed: identity.NewSet()}

	bounds := img.Bounds()
	raw, err := m.detector.Detect(ctx, img)
	if err != nil {
		return res, fmt.Errorf("detecting faces: %w", err)
	}

	regions := make([]image.Rectangle, 0, len(raw))
	for _, r := range raw {
		if clamped, ok := ClampRegion(r, bounds, constants.MinRegionSize); ok {
			regions = append(regions, clamped)
		}
	}
	regions = SuppressDuplicates(regions, constants.DuplicateRegionIoU)

	for _, r := range regions {
		vec, err := m.encoder.Encode(ctx, crop(img, r))
		if err != nil {
			return res, fmt.Errorf("encoding region %v: %w", r, err)
		}
		if len(vec) == 0 {
			continue
		}

		label, distance := m.gallery.Match(vec)
		label = m.Classify(label, distance)
		res.Detections = append(res.Detections, Detection{Rect: r, Label: label, Distance: distance})
		res.Observed.AddLabel(label)
	}

	return res, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func crop(img image.Image, r image.Rectangle) image.Image {
	if r == img.Bounds() {
		return img
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x-r.Min.X, y-r.Min.Y, img.At(x, y))
		}
	}
	return dst
}

// FullFrameDetector reports the whole frame as a single region and leaves
// face localisation to the encoder.
type FullFrameDetector struct{}

// Detect implements Detector.
func (FullFrameDetector) Detect(_ context.Context, img image.Image) ([]image.Rectangle, error) {
	return []image.Rectangle{img.Bounds()}, nil
}
