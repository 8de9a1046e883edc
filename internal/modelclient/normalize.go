package modelclient

import "math"

// l2Normalize scales v to unit length in place and returns it. A zero
// vector is returned unchanged.
func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
	return v
}

func l2NormalizeBatch(batch [][]float32) [][]float32 {
	for i := range batch {
		batch[i] = l2Normalize(batch[i])
	}
	return batch
}
