package fingerprint

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// FaceEncoder turns an image region into at most one face feature vector.
type FaceEncoder struct {
	client *EmbeddingClient

	mu    sync.Mutex
	model string
}

// NewFaceEncoder creates an encoder backed by the embedding service.
func NewFaceEncoder(client *EmbeddingClient) *FaceEncoder {
	return &FaceEncoder{client: client}
}

// Encode returns the embedding of the most confident face in img, or nil if
// the service found no face. Only transport and protocol failures are errors.
func (e *FaceEncoder) Encode(ctx context.Context, img image.Image) ([]float32, error) {
	data, err := EncodeJPEG(img, constants.MaxImageSize, constants.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("preparing face crop: %w", err)
	}

	resp, err := e.client.ComputeFaceEmbeddings(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("computing face embedding: %w", err)
	}

	if resp.Model != "" {
		e.mu.Lock()
		e.model = resp.Model
		e.mu.Unlock()
	}

	var best *FaceDetection
	for i := range resp.Faces {
		f := &resp.Faces[i]
		if len(f.Embedding) == 0 {
			continue
		}
		if best == nil || f.DetScore > best.DetScore {
			best = f
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Embedding, nil
}

// Model returns the model name last reported by the service.
func (e *FaceEncoder) Model() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}
