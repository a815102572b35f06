// Package similarity finds the gallery identities nearest to an embedding,
// either through the remote search service or an in-process HNSW index.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/sightline/internal/adapters/collab"
	"github.com/okian/sightline/internal/domain/model"
)

const (
	defaultTimeout   = 10 * time.Second
	searchPath       = "/search"
	collaboratorName = "similarity"
)

// Sentinel kinds for similarity errors.
var (
	ErrDimensionMismatch = errors.New("embedding dimension does not match gallery")
	ErrInvalidGallery    = errors.New("invalid gallery")
)

// Searcher returns up to k candidates ordered by ascending distance.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, k int) ([]model.Candidate, error)
}

// HTTPClient calls POST {baseURL}/search.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Searcher = (*HTTPClient)(nil)

type searchRequest struct {
	Embedding []float32 `json:"embedding"`
	TopK      int       `json:"top_k"`
}

type searchResponse struct {
	Results []model.Candidate `json:"results"`
}

// NewHTTPClient creates a client for the search service at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Search(ctx context.Context, embedding []float32, k int) ([]model.Candidate, error) {
	var resp searchResponse
	if err := collab.PostJSON(ctx, c.client, collaboratorName, c.baseURL+searchPath,
		searchRequest{Embedding: embedding, TopK: k}, &resp); err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	for _, r := range resp.Results {
		if r.IdentityID == "" {
			return nil, fmt.Errorf("similarity search: %w: empty identity_id", collab.ErrResponse)
		}
	}
	return resp.Results, nil
}
