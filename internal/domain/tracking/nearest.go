package tracking

import (
	"time"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/okian/sightline/internal/domain/model"
)

// sample is one recent position of a track, indexed in a 2-d tree.
type sample struct {
	personID string
	ts       time.Time
	x, y     float64
}

func (s sample) coord(d kdtree.Dim) float64 {
	if d == 0 {
		return s.x
	}
	return s.y
}

func (s sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return s.coord(d) - c.(sample).coord(d)
}

func (s sample) Dims() int { return 2 }

// Distance is the squared Euclidean distance.
func (s sample) Distance(c kdtree.Comparable) float64 {
	q := c.(sample)
	dx, dy := s.x-q.x, s.y-q.y
	return dx*dx + dy*dy
}

type samples []sample

func (s samples) Index(i int) kdtree.Comparable         { return s[i] }
func (s samples) Len() int                              { return len(s) }
func (s samples) Pivot(d kdtree.Dim) int                { return plane{samples: s, Dim: d}.Pivot() }
func (s samples) Slice(start, end int) kdtree.Interface { return s[start:end] }

// plane orders samples along one dimension for tree construction.
type plane struct {
	kdtree.Dim
	samples
}

func (p plane) Less(i, j int) bool { return p.samples[i].coord(p.Dim) < p.samples[j].coord(p.Dim) }
func (p plane) Pivot() int         { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.samples = p.samples[start:end]
	return p
}
func (p plane) Swap(i, j int) { p.samples[i], p.samples[j] = p.samples[j], p.samples[i] }

// nearest returns the candidate closest to pos within radius. Equal distances
// prefer the most recent sample, then the smallest person id.
func nearest(candidates []sample, pos model.Position, radius float64) (sample, bool) {
	if len(candidates) == 0 {
		return sample{}, false
	}
	pts := make(samples, len(candidates))
	copy(pts, candidates)
	tree := kdtree.New(pts, false)

	keep := kdtree.NewDistKeeper(radius * radius)
	tree.NearestSet(keep, sample{x: pos.X, y: pos.Y})

	var (
		best  sample
		bestD float64
		found bool
	)
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		c := cd.Comparable.(sample)
		if !found || better(c, cd.Dist, best, bestD) {
			best, bestD, found = c, cd.Dist, true
		}
	}
	return best, found
}

func better(c sample, d float64, best sample, bestD float64) bool {
	if d != bestD {
		return d < bestD
	}
	if !c.ts.Equal(best.ts) {
		return c.ts.After(best.ts)
	}
	return c.personID < best.personID
}
