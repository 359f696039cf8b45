package embedding

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func TestClient_Detect(t *testing.T) {
	var gotContentType string
	var gotPath string
	var gotBytes int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart file field: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotContentType = header.Header.Get("Content-Type")
		data, _ := io.ReadAll(file)
		gotBytes = len(data)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"faces_count": 2,
			"model": "buffalo_l",
			"faces": [
				{"face_index": 0, "dim": 3, "embedding": [0.1, 0.2, 0.3], "bbox": [10, 20, 50, 80], "det_score": 0.98},
				{"face_index": 1, "dim": 3, "embedding": [0.4, 0.5, 0.6], "bbox": [60.4, 20, 90.6, 70], "det_score": 0.71}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "dlib_face_recognition_resnet_model_v1")
	faces, err := client.Detect(context.Background(), testImage(32, 32))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if gotPath != "/embed/face" {
		t.Errorf("expected path /embed/face, got %s", gotPath)
	}
	if gotContentType != "image/jpeg" {
		t.Errorf("expected image/jpeg part, got %s", gotContentType)
	}
	if gotBytes == 0 {
		t.Error("expected non-empty image upload")
	}

	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].Box != image.Rect(10, 20, 50, 80) {
		t.Errorf("unexpected first box %v", faces[0].Box)
	}
	if faces[1].Box != image.Rect(60, 20, 91, 70) {
		t.Errorf("unexpected second box %v", faces[1].Box)
	}
	if faces[1].Embedding[2] != 0.6 {
		t.Errorf("expected embedding value 0.6, got %v", faces[1].Embedding[2])
	}
	if faces[0].Score != 0.98 {
		t.Errorf("expected score 0.98, got %v", faces[0].Score)
	}
	if client.Model() != "buffalo_l" {
		t.Errorf("expected model reported by server, got %s", client.Model())
	}
}

func TestClient_Detect_NoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces_count": 0, "faces": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "buffalo_l")
	faces, err := client.Detect(context.Background(), testImage(8, 8))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("expected no faces, got %d", len(faces))
	}
	if client.Model() != "buffalo_l" {
		t.Errorf("expected configured model to be kept, got %s", client.Model())
	}
}

func TestClient_Detect_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Detect(context.Background(), testImage(8, 8))
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("expected status and body in error, got %v", err)
	}
}

func TestClient_Detect_EmptyEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces_count": 1, "faces": [{"face_index": 0, "embedding": [], "bbox": [0, 0, 1, 1]}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Detect(context.Background(), testImage(8, 8))
	if !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
}

func TestClient_Detect_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if _, err := client.Detect(context.Background(), testImage(8, 8)); err == nil {
		t.Error("expected parse error")
	}
}

func TestNewClient_DefaultURL(t *testing.T) {
	client := NewClient("", "")
	if client.baseURL != defaultEmbeddingURL {
		t.Errorf("expected default URL %s, got %s", defaultEmbeddingURL, client.baseURL)
	}
}

func TestClient_Detect_SkipsFaceWithoutEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces_count": 2, "faces": [
			{"face_index": 0, "embedding": [], "bbox": [0, 0, 1, 1]},
			{"face_index": 1, "embedding": [0.5, 0.5], "bbox": [2, 2, 6, 6]}
		]}`))
	}))
	defer server.Close()

	faces, err := NewClient(server.URL, "").Detect(context.Background(), testImage(8, 8))
	if err != nil {
		t.Fatalf("expected usable face to be returned, got %v", err)
	}
	if len(faces) != 1 || faces[0].Box != image.Rect(2, 2, 6, 6) {
		t.Errorf("expected only the second face, got %+v", faces)
	}
}

func TestClient_ProbeModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces_count": 0, "faces": [], "model": "buffalo_s"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "buffalo_l")
	var _ ModelProber = client

	model, err := client.ProbeModel(context.Background())
	if err != nil {
		t.Fatalf("ProbeModel failed: %v", err)
	}
	if model != "buffalo_s" || client.Model() != "buffalo_s" {
		t.Errorf("expected buffalo_s, got probe=%q client=%q", model, client.Model())
	}
}

func TestClient_ProbeModel_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "buffalo_l")
	if _, err := client.ProbeModel(context.Background()); err == nil {
		t.Error("expected probe error")
	}
	if client.Model() != "buffalo_l" {
		t.Errorf("expected configured model kept, got %q", client.Model())
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(testImage(16, 16))
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}
	if len(data) < 3 || data[0] != 0xFF || data[1] != 0xD8 || data[2] != 0xFF {
		t.Error("expected JPEG magic bytes")
	}
}
