package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultTimeout      = 30 * time.Second
)

var (
	// ErrNoFace is returned when the photograph contains no detectable face.
	ErrNoFace = errors.New("no face detected")
	// ErrMultipleFaces is returned when more than one face is detected.
	ErrMultipleFaces = errors.New("multiple faces detected")
	// ErrUnavailable means the embedding server could not be reached.
	ErrUnavailable = errors.New("embedding server unavailable")
)

// Extractor computes face embeddings using the embedding server.
type Extractor struct {
	baseURL string
	dim     int
	maxSize int
	client  *http.Client
}

// NewExtractor creates an extractor. dim is the expected embedding size,
// zero accepts any size.
func NewExtractor(baseURL string, dim int) *Extractor {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Extractor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		maxSize: DefaultMaxImageSize,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Extract returns the embedding of the single face in image. Photographs
// with no face or several faces are rejected.
func (e *Extractor) Extract(ctx context.Context, image []byte) ([]float32, error) {
	resp, err := e.DetectFaces(ctx, image)
	if err != nil {
		return nil, err
	}

	switch len(resp.Faces) {
	case 0:
		return nil, ErrNoFace
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d faces", ErrMultipleFaces, len(resp.Faces))
	}

	face := resp.Faces[0]
	if len(face.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	if e.dim > 0 && len(face.Embedding) != e.dim {
		return nil, fmt.Errorf("embedding server returned %d dimensions, expected %d", len(face.Embedding), e.dim)
	}
	return face.Embedding, nil
}

// DetectFaces prepares the image and returns every face the server detects.
func (e *Extractor) DetectFaces(ctx context.Context, image []byte) (*FaceResponse, error) {
	prepared, err := PrepareImage(image, e.maxSize)
	if err != nil {
		return nil, err
	}

	body, err := e.postMultipartImage(ctx, "/embed/face", prepared)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// postMultipartImage posts JPEG image data as the "file" form field.
func (e *Extractor) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="probe.jpg"`)
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	default:
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
}
