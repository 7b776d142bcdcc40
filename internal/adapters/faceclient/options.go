package faceclient

import (
	"net/http"
	"time"

	"github.com/okian/facetally/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithTimeout bounds every request to the face service.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithFaceSize sets the square side crops are resized to before embedding.
func WithFaceSize(px int) Option {
	return func(c *Client) {
		if px > 0 {
			c.faceSize = px
		}
	}
}

// WithMinFaceSize drops detections narrower or shorter than px.
func WithMinFaceSize(px int) Option {
	return func(c *Client) {
		if px >= 0 {
			c.minFaceSize = px
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
