package remote

import (
	"slices"

	"github.com/Zereker/vectorstore/pkg/vector"
)

// Candidates is how many documents to fetch from a backend so that the
// client-side filter and rescoring can still fill limit results.
func Candidates(limit int, filtered bool) int {
	if !filtered {
		return limit
	}
	return max(limit*4, limit+100)
}

// Rescore scores candidates with the shared similarity engine, drops those
// that fail matcher or the threshold, and returns the top results. Candidates
// must carry vectors.
func Rescore(req vector.SearchRequest, metric vector.Metric, matcher *vector.Matcher, candidates []vector.Document) ([]vector.SearchResult, error) {
	scorer, err := vector.ScorerFor(metric)
	if err != nil {
		return nil, err
	}

	results := make([]vector.SearchResult, 0, len(candidates))
	for _, doc := range candidates {
		if !matcher.Match(doc.Metadata) {
			continue
		}
		score, err := scorer(req.Vector, doc.Vector)
		if err != nil {
			return nil, err
		}
		if !req.Admits(score) {
			continue
		}

		res := vector.SearchResult{ID: doc.ID, Score: score, Content: doc.Content}
		if req.IncludeVectors {
			res.Vector = doc.Vector
		}
		if req.WantMetadata() {
			res.Metadata = doc.Metadata
		}
		results = append(results, res)
	}

	slices.SortStableFunc(results, func(a, b vector.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if limit := req.Limit(); len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
