// Package scorer implements late-interaction (MaxSim) similarity between
// token matrices: for each query token, the best cosine match among all
// candidate tokens, summed over the query's tokens.
package scorer

import (
	"fmt"

	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/pkg/vectormath"
)

// Score computes MaxSim(query, candidate). Both matrices are row-normalized
// internally (inputs are not modified), so each pairwise similarity is a
// cosine. The per-row maximum is taken over the query's rows, which makes
// the function asymmetric: Score(a, b) != Score(b, a) in general.
//
// The sum accumulates in float64 regardless of storage precision so that
// near-tied candidates keep a stable order. The result is not clamped; an
// all-negative pairwise matrix legitimately yields a negative score.
//
// Returns EmptyMatrixError when either matrix has zero rows: a zero return
// would be indistinguishable from a legitimately low score.
func Score(query, candidate *models.TokenMatrix) (float64, error) {
	if query.Rows == 0 {
		return 0, enginerrors.NewEmptyMatrixError("query")
	}

	if candidate.Rows == 0 {
		return 0, enginerrors.NewEmptyMatrixError("candidate")
	}

	if query.Cols != candidate.Cols {
		return 0, fmt.Errorf("maxsim: query dimension %d != candidate dimension %d: %w",
			query.Cols, candidate.Cols, enginerrors.ErrDimensionMismatch)
	}

	q := normalizedRows(query)
	c := normalizedRows(candidate)

	var total float64

	for i := range q {
		best := vectormath.Dot(q[i], c[0])

		for j := 1; j < len(c); j++ {
			if s := vectormath.Dot(q[i], c[j]); s > best {
				best = s
			}
		}

		total += best
	}

	return total, nil
}

// normalizedRows returns per-row unit vectors without touching the input.
func normalizedRows(m *models.TokenMatrix) [][]float32 {
	rows := make([][]float32, m.Rows)
	for i := range rows {
		row := make([]float32, m.Cols)
		copy(row, m.Row(i))
		vectormath.NormalizeL2(row)
		rows[i] = row
	}

	return rows
}
