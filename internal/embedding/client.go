package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultTimeout      = 30 * time.Second

	// probeSize is the side of the blank image sent by ProbeModel.
	probeSize = 64
)

// Client detects faces and computes their embeddings using the embedding server.
type Client struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	model string
}

// NewClient creates a new embedding server client.
// model is the profile name reported until the server tells us otherwise.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// faceDetection represents a single detected face in the server response
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage posts JPEG image data as the "file" form field to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Detect detects faces in img and returns their embeddings in server order.
// Faces the server reports without an embedding are left out; when no face
// is left because of that, ErrEmptyEmbedding is returned.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]Face, error) {
	resp, err := c.detect(ctx, img)
	if err != nil {
		return nil, err
	}

	faces := make([]Face, 0, len(resp.Faces))
	empty := 0
	for _, f := range resp.Faces {
		if len(f.Embedding) == 0 {
			empty++
			continue
		}
		faces = append(faces, Face{
			Box:       boxFromCorners(f.BBox),
			Embedding: f.Embedding,
			Score:     f.DetScore,
		})
	}
	if len(faces) == 0 && empty > 0 {
		return nil, fmt.Errorf("%d faces: %w", empty, ErrEmptyEmbedding)
	}
	return faces, nil
}

// ProbeModel sends a blank image and returns the model the server reports.
func (c *Client) ProbeModel(ctx context.Context) (string, error) {
	blank := image.NewGray(image.Rect(0, 0, probeSize, probeSize))
	if _, err := c.detect(ctx, blank); err != nil {
		return "", fmt.Errorf("failed to probe embedding model: %w", err)
	}
	return c.Model(), nil
}

func (c *Client) detect(ctx context.Context, img image.Image) (*faceResponse, error) {
	data, err := EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", data)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if faceResp.Model != "" {
		c.mu.Lock()
		c.model = faceResp.Model
		c.mu.Unlock()
	}
	return &faceResp, nil
}

// Model returns the model name reported by the server, or the configured one.
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// boxFromCorners converts [x1, y1, x2, y2] pixel corners to a rectangle.
// Returns the zero rectangle for malformed input.
func boxFromCorners(bbox []float64) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(
		int(math.Round(bbox[0])),
		int(math.Round(bbox[1])),
		int(math.Round(bbox[2])),
		int(math.Round(bbox[3])),
	)
}
