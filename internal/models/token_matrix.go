package models

import "fmt"

// TokenMatrix is one object's multi-vector embedding: one row per content
// token, Cols values per row. Data is row-major and must hold exactly
// Rows*Cols values. Row 0 is the distinguished global token by convention
// (see SummaryVector).
type TokenMatrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewTokenMatrix allocates a zeroed rows x cols matrix.
func NewTokenMatrix(rows, cols int) *TokenMatrix {
	return &TokenMatrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float32, rows*cols),
	}
}

// Validate checks that the declared shape matches the backing slice.
func (m *TokenMatrix) Validate() error {
	if m.Rows < 0 || m.Cols < 0 {
		return fmt.Errorf("token matrix: negative shape %dx%d", m.Rows, m.Cols)
	}

	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("token matrix: shape %dx%d disagrees with %d values", m.Rows, m.Cols, len(m.Data))
	}

	return nil
}

// Row returns the i-th token vector as a subslice of Data (not a copy).
func (m *TokenMatrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// SummaryVector returns a copy of row 0, the global token used for
// approximate candidate generation. Returns nil for an empty matrix.
func (m *TokenMatrix) SummaryVector() []float32 {
	if m.Rows == 0 {
		return nil
	}

	out := make([]float32, m.Cols)
	copy(out, m.Row(0))

	return out
}

// Clone returns a deep copy.
func (m *TokenMatrix) Clone() *TokenMatrix {
	data := make([]float32, len(m.Data))
	copy(data, m.Data)

	return &TokenMatrix{Rows: m.Rows, Cols: m.Cols, Data: data}
}
