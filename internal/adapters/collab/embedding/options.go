package embedding

import (
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithDimension sets the expected embedding length.
func WithDimension(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.dimension = n
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}
