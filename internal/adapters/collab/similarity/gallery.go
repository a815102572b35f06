package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/metrics"
)

// Default graph parameters.
const (
	defaultMaxNeighbors = 16
	defaultEfSearch     = 64
)

// GalleryEntry is one enrolled identity as stored in the gallery file.
type GalleryEntry struct {
	IdentityID string    `json:"identity_id"`
	Embedding  []float32 `json:"embedding"`
}

// Gallery is an in-process HNSW index over enrolled identities using
// Euclidean distance.
type Gallery struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	dims  int
	ids   map[string]struct{}

	maxNeighbors int
	efSearch     int
}

var _ Searcher = (*Gallery)(nil)

// NewGallery creates an empty gallery.
func NewGallery(opts ...GalleryOption) *Gallery {
	g := &Gallery{
		ids:          make(map[string]struct{}),
		maxNeighbors: defaultMaxNeighbors,
		efSearch:     defaultEfSearch,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.graph = g.newGraph()
	return g
}

func (g *Gallery) newGraph() *hnsw.Graph[string] {
	graph := hnsw.NewGraph[string]()
	graph.M = g.maxNeighbors
	graph.Ml = 1.0 / float64(g.maxNeighbors)
	graph.EfSearch = g.efSearch
	graph.Distance = hnsw.EuclideanDistance
	return graph
}

// LoadGallery reads a JSON array of GalleryEntry from path.
func LoadGallery(path string, opts ...GalleryOption) (*Gallery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gallery: %w", err)
	}
	var entries []GalleryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGallery, err)
	}
	g := NewGallery(opts...)
	if err := g.Add(entries...); err != nil {
		return nil, err
	}
	return g, nil
}

// Add enrolls entries. All embeddings must share one dimension.
func (g *Gallery) Add(entries ...GalleryEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	dims := g.dims
	for _, e := range entries {
		if e.IdentityID == "" || len(e.Embedding) == 0 {
			return fmt.Errorf("%w: entry %q has no id or embedding", ErrInvalidGallery, e.IdentityID)
		}
		if dims == 0 {
			dims = len(e.Embedding)
		}
		if len(e.Embedding) != dims {
			return fmt.Errorf("%w: entry %q has %d dims, want %d", ErrDimensionMismatch, e.IdentityID, len(e.Embedding), dims)
		}
	}
	for _, e := range entries {
		// re-enrolling an id replaces its node
		g.graph.Add(hnsw.MakeNode(e.IdentityID, e.Embedding))
		g.ids[e.IdentityID] = struct{}{}
	}
	g.dims = dims
	return nil
}

// Len returns the number of enrolled identities.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.ids)
}

func (g *Gallery) Search(_ context.Context, embedding []float32, k int) (out []model.Candidate, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RecordCollaboratorLatency(collaboratorName, outcome, time.Since(start))
	}()

	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.ids) == 0 || k <= 0 {
		return nil, nil
	}
	if len(embedding) != g.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), g.dims)
	}

	nodes := g.graph.Search(embedding, k)
	out = make([]model.Candidate, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, model.Candidate{
			IdentityID: n.Key,
			Distance:   float64(hnsw.EuclideanDistance(embedding, n.Value)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].IdentityID < out[j].IdentityID
	})
	return out, nil
}
