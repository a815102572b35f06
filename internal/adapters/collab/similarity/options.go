package similarity

import (
	"net/http"
	"time"
)

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// GalleryOption configures a Gallery.
type GalleryOption func(*Gallery)

// WithMaxNeighbors sets the HNSW M parameter.
func WithMaxNeighbors(m int) GalleryOption {
	return func(g *Gallery) {
		if m > 0 {
			g.maxNeighbors = m
		}
	}
}

// WithEfSearch sets the HNSW search breadth.
func WithEfSearch(ef int) GalleryOption {
	return func(g *Gallery) {
		if ef > 0 {
			g.efSearch = ef
		}
	}
}
