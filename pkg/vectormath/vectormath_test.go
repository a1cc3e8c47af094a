package vectormath

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	t.Run("unit vector unchanged", func(t *testing.T) {
		v := []float32{1, 0, 0}
		NormalizeL2(v)

		if v[0] != 1 || v[1] != 0 || v[2] != 0 {
			t.Errorf("unit vector changed: got %v", v)
		}
	})

	t.Run("normalizes to unit length", func(t *testing.T) {
		vec := []float32{3, 4}
		NormalizeL2(vec)
		// 3-4-5 triangle => magnitude 5 => expected (0.6, 0.8)
		const tol = 1e-5
		if math.Abs(float64(vec[0])-0.6) > tol || math.Abs(float64(vec[1])-0.8) > tol {
			t.Errorf("expected (0.6, 0.8), got (%f, %f)", vec[0], vec[1])
		}

		mag := math.Sqrt(float64(vec[0]*vec[0] + vec[1]*vec[1]))
		if math.Abs(mag-1) > tol {
			t.Errorf("magnitude should be 1, got %f", mag)
		}
	})

	t.Run("zero vector does not panic", func(t *testing.T) {
		v := []float32{0, 0, 0}
		NormalizeL2(v)

		if v[0] != 0 || v[1] != 0 || v[2] != 0 {
			t.Errorf("zero vector should remain unchanged: got %v", v)
		}
	})
}

func TestDot(t *testing.T) {
	t.Run("orthogonal vectors", func(t *testing.T) {
		if got := Dot([]float32{1, 0}, []float32{0, 1}); got != 0 {
			t.Errorf("Dot = %f, want 0", got)
		}
	})

	t.Run("accumulates in float64", func(t *testing.T) {
		a := []float32{1e-4, 1e-4, 1e-4}
		b := []float32{1e-4, 1e-4, 1e-4}

		const tol = 1e-15
		if got := Dot(a, b); math.Abs(got-3e-8) > tol {
			t.Errorf("Dot = %g, want 3e-8", got)
		}
	})

	t.Run("panics on length mismatch", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		Dot([]float32{1}, []float32{1, 2})
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("parallel vectors", func(t *testing.T) {
		const tol = 1e-9
		if got := CosineSimilarity([]float32{2, 0}, []float32{5, 0}); math.Abs(got-1) > tol {
			t.Errorf("CosineSimilarity = %f, want 1", got)
		}
	})

	t.Run("opposite vectors", func(t *testing.T) {
		const tol = 1e-9
		if got := CosineSimilarity([]float32{1, 1}, []float32{-1, -1}); math.Abs(got+1) > tol {
			t.Errorf("CosineSimilarity = %f, want -1", got)
		}
	})

	t.Run("zero vector yields zero", func(t *testing.T) {
		if got := CosineSimilarity([]float32{0, 0}, []float32{1, 2}); got != 0 {
			t.Errorf("CosineSimilarity = %f, want 0", got)
		}
	})
}
