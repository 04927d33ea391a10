package embeddings

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize returns the L2-normalized copy of v. A zero vector is returned
// unchanged — normalizing it would divide by zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// Dot returns the dot product of a and b. Panics are avoided by truncating to
// the shorter length; callers should ensure equal dimensionality.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Cosine returns the cosine similarity of a and b. For L2-normalized vectors
// this is exactly [Dot]; the general form divides by both norms so that
// un-normalized inputs still produce a value in [-1, 1].
func Cosine(a, b []float32) float64 {
	dot := Dot(a, b)
	na := math.Sqrt(Dot(a, a))
	nb := math.Sqrt(Dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

// FormatVectorLiteral renders v as a pgvector text literal: "[f1,f2,…]".
//
// Every element must be a finite number. NaN and ±Inf are rejected before any
// string construction so a poisoned vector can never reach SQL text.
func FormatVectorLiteral(v []float32) (string, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		f64 := float64(f)
		if math.IsNaN(f64) || math.IsInf(f64, 0) {
			return "", fmt.Errorf("embeddings: vector element %d is not finite", i)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f64, 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}
