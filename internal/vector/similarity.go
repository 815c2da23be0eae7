package vector

import "math"

// CosineSimilarity returns dot(a,b) / (‖a‖·‖b‖). It returns 0 when either
// vector has zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, aNormSq, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aNormSq += float64(a[i]) * float64(a[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if aNormSq == 0 || bNormSq == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(aNormSq) * math.Sqrt(bNormSq)))
}

// FakeEmbed produces a deterministic unit vector for text without calling
// an embedding provider: character codes are folded sequentially into dims
// buckets and the result is L2-normalized. Not a semantic embedding; it
// only guarantees that identical texts map to identical vectors, which
// keeps offline environments and tests reproducible.
func FakeEmbed(text string, dims int) []float32 {
	if dims <= 0 {
		return nil
	}
	v := make([]float32, dims)
	i := 0
	for _, r := range text {
		v[i%dims] += float32(r)
		i++
	}

	var normSq float64
	for _, f := range v {
		normSq += float64(f) * float64(f)
	}
	if normSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(normSq))
	for i := range v {
		v[i] /= norm
	}
	return v
}
