package facematch

import (
	"slices"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW index parameters for face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchK is the number of approximate neighbors re-ranked exactly.
	// Re-ranking several candidates keeps the stable tie-break intact for
	// references that sit at the same distance.
	HNSWSearchK = 16
)

// Index wraps an HNSW graph over the flattened reference embeddings.
// Node keys are reference positions, so candidates map straight back to roster order.
type Index struct {
	graph *hnsw.Graph[int]
	mu    sync.RWMutex
	size  int
	dim   int
}

// NewIndex builds an index over the vectors. It returns nil when there is
// nothing to index or when the vectors do not share one dimension.
func NewIndex(vectors [][]float32) *Index {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	for _, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil
		}
	}

	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance

	for i, v := range vectors {
		g.Add(hnsw.MakeNode(i, v))
	}

	return &Index{graph: g, size: len(vectors), dim: dim}
}

// Candidates returns up to HNSWSearchK reference positions near the query, ascending.
// A query of the wrong dimension yields no candidates.
func (ix *Index) Candidates(query []float32) []int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil || len(query) != ix.dim {
		return nil
	}

	k := min(HNSWSearchK, ix.size)
	neighbors := ix.graph.Search(query, k)

	ids := make([]int, 0, len(neighbors))
	for _, n := range neighbors {
		ids = append(ids, n.Key)
	}
	slices.Sort(ids)
	return ids
}
