package codec

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
)

func randomMatrix(t *testing.T, rng *rand.Rand, rows, cols int) *models.TokenMatrix {
	t.Helper()

	m := models.NewTokenMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = rng.Float32()*2 - 1
	}

	return m
}

func TestCodec_RoundTrip(t *testing.T) {
	c := New()
	rng := rand.New(rand.NewSource(42))

	shapes := []struct{ rows, cols int }{
		{1, 1},
		{2, 4},
		{50, 128},
		{120, 768},
	}

	for _, shape := range shapes {
		m := randomMatrix(t, rng, shape.rows, shape.cols)

		blob, stats, err := c.Encode(m)
		require.NoError(t, err)
		assert.Equal(t, shape.rows*shape.cols*4, stats.BytesIn)
		assert.Equal(t, len(blob), stats.BytesOut)

		got, err := c.Decode(blob)
		require.NoError(t, err)
		assert.Equal(t, m.Rows, got.Rows)
		assert.Equal(t, m.Cols, got.Cols)
		// Bit-for-bit: float32 equality must be exact after a round trip.
		assert.Equal(t, m.Data, got.Data)
	}
}

func TestCodec_RoundTripPreservesExactBits(t *testing.T) {
	c := New()

	m := models.NewTokenMatrix(1, 4)
	m.Data[0] = math.Float32frombits(0x00000001) // smallest subnormal
	m.Data[1] = -0.0
	m.Data[2] = math.MaxFloat32
	m.Data[3] = math.SmallestNonzeroFloat32

	blob, _, err := c.Encode(m)
	require.NoError(t, err)

	got, err := c.Decode(blob)
	require.NoError(t, err)

	for i := range m.Data {
		assert.Equal(t, math.Float32bits(m.Data[i]), math.Float32bits(got.Data[i]), "index %d", i)
	}
}

func TestCodec_Deterministic(t *testing.T) {
	c := New()
	m := randomMatrix(t, rand.New(rand.NewSource(7)), 30, 64)

	a, _, err := c.Encode(m)
	require.NoError(t, err)

	b, _, err := c.Encode(m)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestCodec_NonFinitePolicy(t *testing.T) {
	m := models.NewTokenMatrix(2, 2)
	m.Data[3] = float32(math.NaN())

	t.Run("rejected by default", func(t *testing.T) {
		_, _, err := New().Encode(m)
		assert.ErrorIs(t, err, enginerrors.ErrEncode)
	})

	t.Run("allowed when configured", func(t *testing.T) {
		c := New(WithNonFiniteAllowed())

		blob, _, err := c.Encode(m)
		require.NoError(t, err)

		got, err := c.Decode(blob)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(float64(got.Data[3])))
	})
}

func TestCodec_EncodeRejectsBadShape(t *testing.T) {
	m := &models.TokenMatrix{Rows: 3, Cols: 3, Data: make([]float32, 4)}

	_, _, err := New().Encode(m)
	assert.ErrorIs(t, err, enginerrors.ErrEncode)
}

func TestCodec_DecodeCorruption(t *testing.T) {
	c := New()
	m := randomMatrix(t, rand.New(rand.NewSource(3)), 8, 16)

	blob, _, err := c.Encode(m)
	require.NoError(t, err)

	t.Run("truncated blob", func(t *testing.T) {
		_, err := c.Decode(blob[:5])
		assert.ErrorIs(t, err, enginerrors.ErrDecode)
	})

	t.Run("bad magic", func(t *testing.T) {
		corrupt := append([]byte(nil), blob...)
		corrupt[0] ^= 0xff

		_, err := c.Decode(corrupt)
		assert.ErrorIs(t, err, enginerrors.ErrDecode)
	})

	t.Run("flipped shape byte never yields wrong-shaped matrix", func(t *testing.T) {
		// Flip each header byte in turn: decode must fail, never succeed
		// with a different shape than was encoded.
		for i := 4; i < headerLen; i++ {
			corrupt := append([]byte(nil), blob...)
			corrupt[i] ^= 0x01

			got, err := c.Decode(corrupt)
			if err == nil {
				assert.Equal(t, m.Rows, got.Rows, "header byte %d", i)
				assert.Equal(t, m.Cols, got.Cols, "header byte %d", i)
			} else {
				assert.ErrorIs(t, err, enginerrors.ErrDecode, "header byte %d", i)
			}
		}
	})

	t.Run("corrupted payload", func(t *testing.T) {
		corrupt := append([]byte(nil), blob...)
		corrupt[len(corrupt)-3] ^= 0xff

		_, err := c.Decode(corrupt)
		assert.ErrorIs(t, err, enginerrors.ErrDecode)
	})

	t.Run("implausible shape rejected before allocation", func(t *testing.T) {
		corrupt := append([]byte(nil), blob...)
		for i := 6; i < 14; i++ {
			corrupt[i] = 0xff
		}

		_, err := c.Decode(corrupt)
		assert.ErrorIs(t, err, enginerrors.ErrDecode)
	})
}

func TestStats_Ratio(t *testing.T) {
	assert.Equal(t, 0.0, Stats{}.Ratio())
	assert.InDelta(t, 2.0, Stats{BytesIn: 200, BytesOut: 100}.Ratio(), 1e-9)
}
