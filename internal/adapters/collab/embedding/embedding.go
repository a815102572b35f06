// Package embedding is the client for the face embedding service.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/sightline/internal/adapters/collab"
)

const (
	defaultDimension = 512
	defaultTimeout   = 10 * time.Second
	generatePath     = "/generate-embedding"
	collaboratorName = "embedding"
)

// ErrDimension is returned when the service answers with a vector of the
// wrong length.
var ErrDimension = errors.New("unexpected embedding dimension")

// Client calls POST {baseURL}/generate-embedding.
type Client struct {
	baseURL   string
	dimension int
	client    *http.Client
}

type generateRequest struct {
	FaceCrop string `json:"face_crop"`
}

type generateResponse struct {
	Embedding []float32 `json:"embedding"`
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		dimension: defaultDimension,
		client:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dimension is the vector length the client expects.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns the embedding for faceCrop.
func (c *Client) Embed(ctx context.Context, faceCrop string) ([]float32, error) {
	var resp generateResponse
	if err := collab.PostJSON(ctx, c.client, collaboratorName, c.baseURL+generatePath,
		generateRequest{FaceCrop: faceCrop}, &resp); err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	if len(resp.Embedding) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(resp.Embedding), c.dimension)
	}
	return resp.Embedding, nil
}
