// Package camera wraps OpenCV capture, Haar cascade detection and the
// preview window.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// ErrUnavailable is returned when the capture device cannot be opened.
var ErrUnavailable = errors.New("camera unavailable")

// SourceConfig selects and sizes the capture device.
type SourceConfig struct {
	// Device is a webcam index ("0") or a stream URL / file path.
	Device string
	Width  int
	Height int
}

// Source reads frames from a webcam or video stream.
type Source struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
	device  string
}

// OpenSource opens the capture device described by cfg.
func OpenSource(cfg SourceConfig) (*Source, error) {
	var device any = cfg.Device
	if idx, err := strconv.Atoi(cfg.Device); err == nil {
		device = idx
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %q: %v", ErrUnavailable, cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %q is not open", ErrUnavailable, cfg.Device)
	}

	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1)

	return &Source{capture: capture, frame: gocv.NewMat(), device: cfg.Device}, nil
}

// Read grabs the next frame. ctx is only checked before the blocking read.
func (s *Source) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok := s.capture.Read(&s.frame); !ok || s.frame.Empty() {
		return nil, fmt.Errorf("reading frame from %q", s.device)
	}

	img, err := s.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

// Close releases the capture device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame.Close()
	if err := s.capture.Close(); err != nil {
		return fmt.Errorf("closing camera %q: %w", s.device, err)
	}
	return nil
}
