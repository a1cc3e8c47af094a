// Package ranker merges per-collection scored results into one globally
// ranked list. Different collections embed into different spaces, so raw
// scores are not comparable across them; per-collection weights let
// operators tune relative importance before the cross-collection sort.
package ranker

import (
	"sort"

	"github.com/doclens/engine/internal/models"
)

// Merge combines scored results across collections. Each result's score is
// multiplied by its collection's weight (absent means 1.0), then all results
// are sorted by weighted score descending and truncated to topN. Ranks run
// 0..n-1.
//
// The input is an ordered slice rather than a map so ties break
// deterministically: equal weighted scores keep the order in which their
// collections (and results within a collection) were supplied. The merger
// does not deduplicate; the same source entity appearing under two
// collections stays as two results, since only callers know which metadata
// fields constitute identity.
func Merge(resultsByCollection []models.CollectionResults, weights map[string]float64, topN int) []models.RankedResult {
	if topN <= 0 {
		return nil
	}

	var merged []models.RankedResult

	for _, cr := range resultsByCollection {
		weight := 1.0
		if w, ok := weights[cr.Collection]; ok {
			weight = w
		}

		for _, result := range cr.Results {
			merged = append(merged, models.RankedResult{
				ID:         result.ID,
				Collection: result.Collection,
				Score:      result.Score * weight,
				Metadata:   result.Metadata,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if len(merged) > topN {
		merged = merged[:topN]
	}

	for i := range merged {
		merged[i].Rank = i
	}

	return merged
}
