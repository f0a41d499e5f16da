package gallery

import (
	"fmt"
	"math"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// IndexKind selects how the nearest gallery vector is found.
type IndexKind string

const (
	// Linear compares the query with every stored vector (exact).
	Linear IndexKind = "linear"
	// HNSW searches an approximate graph and re-ranks the candidates exactly.
	HNSW IndexKind = "hnsw"
)

// ParseIndexKind converts a config value to an IndexKind.
func ParseIndexKind(s string) (IndexKind, error) {
	switch IndexKind(s) {
	case Linear, HNSW:
		return IndexKind(s), nil
	default:
		return "", fmt.Errorf("unknown gallery index %q", s)
	}
}

// index finds the position of the stored vector nearest to a query.
type index interface {
	Nearest(query []float32) (int, float64)
}

func newIndex(kind IndexKind, metric Metric, vectors [][]float32) index {
	if kind == HNSW {
		return newHNSWIndex(metric, vectors)
	}
	return &linearIndex{metric: metric, vectors: vectors}
}

type linearIndex struct {
	metric  Metric
	vectors [][]float32
}

// Nearest returns the first position with the minimum distance, or -1 for an
// empty index.
func (l *linearIndex) Nearest(query []float32) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, v := range l.vectors {
		if d := l.metric.Distance(query, v); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// hnswIndex wraps an HNSW graph keyed by gallery position.
type hnswIndex struct {
	graph   *hnsw.Graph[int]
	metric  Metric
	vectors [][]float32
	dim     int
}

func newHNSWIndex(metric Metric, vectors [][]float32) *hnswIndex {
	g := hnsw.NewGraph[int]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	if metric == Cosine {
		g.Distance = hnsw.CosineDistance
	} else {
		g.Distance = hnsw.EuclideanDistance
	}

	h := &hnswIndex{graph: g, metric: metric, vectors: vectors}
	for i, v := range vectors {
		if len(v) == 0 {
			continue
		}
		h.dim = len(v)
		g.Add(hnsw.MakeNode(i, v))
	}
	return h
}

// Nearest searches the graph for candidates and re-ranks them with the exact
// metric, so the reported distance is always the true distance.
func (h *hnswIndex) Nearest(query []float32) (int, float64) {
	if h.graph.Len() == 0 || len(query) != h.dim {
		return -1, math.Inf(1)
	}

	k := min(constants.HNSWCandidates, h.graph.Len())
	best, bestDist := -1, math.Inf(1)
	for _, n := range h.graph.Search(query, k) {
		if d := h.metric.Distance(query, h.vectors[n.Key]); d < bestDist || (d == bestDist && n.Key < best) {
			best, bestDist = n.Key, d
		}
	}
	return best, bestDist
}
