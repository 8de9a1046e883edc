package modelclient

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestL2Normalize(t *testing.T) {
	v := l2Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestL2NormalizeZeroVector(t *testing.T) {
	v := l2Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, v)
}

func TestL2NormalizeBatch(t *testing.T) {
	batch := l2NormalizeBatch([][]float32{{1, 0}, {0, 2}})
	assert.InDelta(t, 1.0, batch[0][0], 1e-6)
	assert.InDelta(t, 1.0, batch[1][1], 1e-6)
}
