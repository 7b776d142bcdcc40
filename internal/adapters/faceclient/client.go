// Package faceclient talks to the external face service that detects faces
// and computes embeddings. It implements the detector and embedder the
// consensus engine depends on.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/okian/facetally/internal/domain/embedding"
	"github.com/okian/facetally/internal/domain/model"
	"github.com/okian/facetally/pkg/logger"
)

// Defaults for the face service.
const (
	DefaultURL         = "http://localhost:8000"
	DefaultFaceSize    = 160
	DefaultMinFaceSize = 60
	defaultTimeout     = 10 * time.Second
	jpegQuality        = 90
)

// Client calls the face service over HTTP.
type Client struct {
	baseURL     string
	http        *http.Client
	faceSize    int
	minFaceSize int
	logger      logger.Logger
}

// New returns a client for the face service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		http:        &http.Client{Timeout: defaultTimeout},
		faceSize:    DefaultFaceSize,
		minFaceSize: DefaultMinFaceSize,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// detection is one face reported by the service.
type detection struct {
	BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore float64   `json:"det_score"`
}

type detectResponse struct {
	FacesCount int         `json:"faces_count"`
	Faces      []detection `json:"faces"`
}

type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
}

// DetectLargestFace asks the service for faces in the frame and returns the
// largest one that is at least the minimum face size. ok is false when none
// qualifies.
func (c *Client) DetectLargestFace(ctx context.Context, frame model.Frame) (image.Rectangle, bool, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(frame.Data))
	if err != nil {
		return image.Rectangle{}, false, fmt.Errorf("frame %d: %w: %w", frame.Index, ErrUndecodable, err)
	}
	bounds := image.Rect(0, 0, cfg.Width, cfg.Height)

	body, err := c.postImage(ctx, "/embed/face", frame.Data)
	if err != nil {
		return image.Rectangle{}, false, err
	}
	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return image.Rectangle{}, false, fmt.Errorf("%w: failed to parse response: %w", ErrService, err)
	}

	var best image.Rectangle
	found := false
	for _, d := range resp.Faces {
		if len(d.BBox) != 4 {
			continue
		}
		r := image.Rect(
			int(math.Floor(d.BBox[0])), int(math.Floor(d.BBox[1])),
			int(math.Ceil(d.BBox[2])), int(math.Ceil(d.BBox[3])),
		).Intersect(bounds)
		if r.Empty() || r.Dx() < c.minFaceSize || r.Dy() < c.minFaceSize {
			continue
		}
		if !found || area(r) > area(best) {
			best, found = r, true
		}
	}
	c.logger.Debug(ctx, "faces detected",
		logger.Int("frame", frame.Index),
		logger.Int("reported", len(resp.Faces)),
		logger.Bool("found", found))
	return best, found, nil
}

// Embed crops face out of the frame, resizes it and returns the normalized
// embedding of the crop.
func (c *Client) Embed(ctx context.Context, frame model.Frame, face image.Rectangle) (embedding.Vector, error) {
	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w: %w", frame.Index, ErrUndecodable, err)
	}
	crop := face.Intersect(img.Bounds())
	if crop.Empty() {
		return nil, fmt.Errorf("frame %d: %w", frame.Index, ErrEmptyCrop)
	}
	return c.embedRegion(ctx, img, crop)
}

// EmbedImage embeds a whole image that is already a face crop, as stored in
// enrollment folders.
func (c *Client) EmbedImage(ctx context.Context, data []byte) (embedding.Vector, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyCrop
	}
	return c.embedRegion(ctx, img, img.Bounds())
}

func (c *Client) embedRegion(ctx context.Context, img image.Image, region image.Rectangle) (embedding.Vector, error) {
	data, err := Resize(img, region, c.faceSize)
	if err != nil {
		return nil, err
	}
	body, err := c.postImage(ctx, "/embed/image", data)
	if err != nil {
		return nil, err
	}
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %w", ErrService, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return embedding.Normalize(resp.Embedding), nil
}

// Resize scales region of img to a size x size square and encodes it as JPEG.
func Resize(img image.Image, region image.Rectangle, size int) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, region, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode face crop: %w", err)
	}
	return buf.Bytes(), nil
}

// postImage sends data as the "file" part of a multipart form.
func (c *Client) postImage(ctx context.Context, endpoint string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", http.DetectContentType(data))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", ErrService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrService, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func area(r image.Rectangle) int { return r.Dx() * r.Dy() }
