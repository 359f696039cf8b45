// Package embedding talks to the face detection and embedding collaborators.
package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// ErrEmptyEmbedding is returned when a collaborator reports a face without an embedding.
var ErrEmptyEmbedding = errors.New("empty embedding returned")

// Face is a single detected face with its embedding.
// Box is in pixel coordinates of the image passed to Detect.
type Face struct {
	Box       image.Rectangle
	Embedding []float32
	Score     float64
}

// Detector locates faces in an image and computes one embedding per face.
// Faces are returned in detection order. Embeddings from one Detector are
// comparable with each other; Model names the model that produced them.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Face, error)
	Model() string
}

// ModelProber is implemented by detectors that learn their model from a
// remote collaborator. ProbeModel asks for it without needing a real face.
type ModelProber interface {
	ProbeModel(ctx context.Context) (string, error)
}

// EncodeJPEG encodes an image as JPEG for collaborators that take encoded bytes.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
