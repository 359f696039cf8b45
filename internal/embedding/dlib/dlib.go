// Package dlib runs face detection and embedding in-process with dlib's
// ResNet face recognition model. It needs the dlib shared libraries and the
// model files (shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat, mmod_human_face_detector.dat).
package dlib

import (
	"context"
	"fmt"
	"image"
	"sync"

	face "github.com/Kagami/go-face"

	"github.com/kozaktomas/attendance/internal/embedding"
)

// Model is the profile name of the embeddings this recognizer produces.
const Model = "dlib_face_recognition_resnet_model_v1"

// Recognizer implements embedding.Detector on top of go-face.
// The underlying dlib recognizer is not safe for concurrent use, so calls are serialized.
type Recognizer struct {
	mu  sync.Mutex
	rec *face.Recognizer
	cnn bool
}

// New loads the dlib models from modelsDir. When cnn is true the slower but
// more accurate CNN face detector is used instead of HOG.
func New(modelsDir string, cnn bool) (*Recognizer, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dlib recognizer from %s: %w", modelsDir, err)
	}
	return &Recognizer{rec: rec, cnn: cnn}, nil
}

// Detect detects faces and returns their 128-d descriptors in detection order.
func (r *Recognizer) Detect(ctx context.Context, img image.Image) ([]embedding.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := embedding.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	var faces []face.Face
	if r.cnn {
		faces, err = r.rec.RecognizeCNN(data)
	} else {
		faces, err = r.rec.Recognize(data)
	}
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognition failed: %w", err)
	}

	out := make([]embedding.Face, 0, len(faces))
	for _, f := range faces {
		desc := make([]float32, len(f.Descriptor))
		copy(desc, f.Descriptor[:])
		out = append(out, embedding.Face{
			Box:       f.Rectangle,
			Embedding: desc,
			Score:     1,
		})
	}
	return out, nil
}

// Model returns the dlib model profile name.
func (r *Recognizer) Model() string {
	return Model
}

// Close releases the dlib recognizer.
func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		r.rec.Close()
		r.rec = nil
	}
}
