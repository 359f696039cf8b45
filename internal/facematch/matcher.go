package facematch

import (
	"math"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/roster"
)

// MatchResult is the outcome of matching one query embedding against the roster.
// Distance and Confidence always describe the nearest candidate, even when
// it was rejected; Name is constants.UnknownName in that case.
type MatchResult struct {
	Name       string
	Distance   float64
	Confidence float64
	Matched    bool
}

// reference is one reference embedding flattened out of the roster.
// Flattened order is identity order, then embedding order within the identity.
type reference struct {
	identity  int
	embedding []float32
}

// Matcher matches query embeddings against a fixed roster.
// It holds no mutable state after construction and is safe for concurrent use.
type Matcher struct {
	names     []string
	refs      []reference
	tolerance float64
	index     *Index
}

// Option configures a Matcher.
type Option func(*matcherOptions)

type matcherOptions struct {
	hnswMinReferences int
}

// WithHNSW enables the approximate index once the roster carries at least
// minReferences reference embeddings. Zero or negative disables the index.
func WithHNSW(minReferences int) Option {
	return func(o *matcherOptions) {
		o.hnswMinReferences = minReferences
	}
}

// NewMatcher builds a matcher over the roster with the given tolerance distance.
func NewMatcher(r *roster.Roster, tolerance float64, opts ...Option) *Matcher {
	var o matcherOptions
	for _, opt := range opts {
		opt(&o)
	}

	m := &Matcher{tolerance: tolerance}
	if r != nil {
		for i, id := range r.Identities() {
			m.names = append(m.names, id.Name)
			for _, emb := range id.Embeddings {
				m.refs = append(m.refs, reference{identity: i, embedding: emb})
			}
		}
	}

	if o.hnswMinReferences > 0 && len(m.refs) >= o.hnswMinReferences {
		vectors := make([][]float32, len(m.refs))
		for i := range m.refs {
			vectors[i] = m.refs[i].embedding
		}
		// NewIndex returns nil for mixed dimensions, leaving the linear scan in place.
		m.index = NewIndex(vectors)
	}

	return m
}

// Match calls NewMatcher and matches a single query. Prefer building a
// Matcher once when matching many queries against the same roster.
func Match(query []float32, r *roster.Roster, tolerance float64) MatchResult {
	return NewMatcher(r, tolerance).Match(query)
}

// Tolerance returns the acceptance distance of the matcher.
func (m *Matcher) Tolerance() float64 {
	return m.tolerance
}

// Indexed reports whether the matcher uses the HNSW index for candidate search.
func (m *Matcher) Indexed() bool {
	return m.index != nil
}

// Match returns the best roster candidate for the query.
//
// The nearest reference wins; ties go to the earliest reference in roster
// order. The candidate is accepted when its distance is within tolerance.
// An empty roster yields Unknown with an infinite distance and zero confidence.
func (m *Matcher) Match(query []float32) MatchResult {
	best, bestDist := m.nearest(query)
	if best < 0 {
		return MatchResult{
			Name:       constants.UnknownName,
			Distance:   math.Inf(1),
			Confidence: 0,
		}
	}

	result := MatchResult{
		Name:       constants.UnknownName,
		Distance:   bestDist,
		Confidence: Confidence(bestDist),
	}
	if bestDist <= m.tolerance {
		result.Name = m.names[m.refs[best].identity]
		result.Matched = true
	}
	return result
}

// nearest returns the index of the nearest reference and its distance, or -1.
func (m *Matcher) nearest(query []float32) (int, float64) {
	if len(m.refs) == 0 {
		return -1, math.Inf(1)
	}

	candidates := m.candidates(query)

	best := -1
	bestDist := math.Inf(1)
	for _, i := range candidates {
		d := EuclideanDistance(query, m.refs[i].embedding)
		// Strict less-than keeps the first occurrence on ties; candidates are ascending.
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}

// candidates returns the reference indexes to score, in ascending order.
func (m *Matcher) candidates(query []float32) []int {
	if m.index != nil {
		if ids := m.index.Candidates(query); len(ids) > 0 {
			return ids
		}
	}
	all := make([]int, len(m.refs))
	for i := range all {
		all[i] = i
	}
	return all
}
