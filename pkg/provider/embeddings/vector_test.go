package embeddings

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Run("unit norm after normalization", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		norm := math.Sqrt(Dot(v, v))
		if math.Abs(norm-1) > 1e-5 {
			t.Errorf("norm = %f, want 1", norm)
		}
	})

	t.Run("self similarity of normalized vector is one", func(t *testing.T) {
		v := Normalize([]float32{0.2, -0.7, 0.5, 0.1})
		sim := Cosine(v, v)
		if sim < 1-1e-5 || sim > 1+1e-5 {
			t.Errorf("cosine(v,v) = %f, want within 1e-5 of 1", sim)
		}
	})

	t.Run("zero vector passes through", func(t *testing.T) {
		v := Normalize([]float32{0, 0, 0})
		for i, f := range v {
			if f != 0 {
				t.Errorf("element %d = %f, want 0", i, f)
			}
		}
	})
}

func TestCosine(t *testing.T) {
	t.Run("orthogonal vectors", func(t *testing.T) {
		if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
			t.Errorf("cosine = %f, want 0", got)
		}
	})

	t.Run("opposite vectors", func(t *testing.T) {
		got := Cosine([]float32{1, 0}, []float32{-1, 0})
		if math.Abs(got+1) > 1e-9 {
			t.Errorf("cosine = %f, want -1", got)
		}
	})

	t.Run("equals dot product for normalized inputs", func(t *testing.T) {
		a := Normalize([]float32{1, 2, 3})
		b := Normalize([]float32{-2, 1, 0.5})
		if diff := math.Abs(Cosine(a, b) - Dot(a, b)); diff > 1e-6 {
			t.Errorf("cosine and dot differ by %f for normalized vectors", diff)
		}
	})
}

func TestFormatVectorLiteral(t *testing.T) {
	t.Run("formats finite vector", func(t *testing.T) {
		got, err := FormatVectorLiteral([]float32{0.1, 0.2, 0.3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "[0.1,0.2,0.3]" {
			t.Errorf("literal = %q, want %q", got, "[0.1,0.2,0.3]")
		}
	})

	t.Run("rejects NaN", func(t *testing.T) {
		if _, err := FormatVectorLiteral([]float32{0.1, float32(math.NaN())}); err == nil {
			t.Error("expected error for NaN element")
		}
	})

	t.Run("rejects infinity", func(t *testing.T) {
		if _, err := FormatVectorLiteral([]float32{float32(math.Inf(1))}); err == nil {
			t.Error("expected error for +Inf element")
		}
		if _, err := FormatVectorLiteral([]float32{float32(math.Inf(-1))}); err == nil {
			t.Error("expected error for -Inf element")
		}
	})
}

func TestCache(t *testing.T) {
	t.Run("get after put", func(t *testing.T) {
		c := NewCache(2)
		c.Put("a", []float32{1})
		vec, ok := c.Get("a")
		if !ok || len(vec) != 1 || vec[0] != 1 {
			t.Errorf("Get(a) = %v, %v", vec, ok)
		}
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		c := NewCache(2)
		c.Put("a", []float32{1})
		c.Put("b", []float32{2})
		c.Get("a") // a becomes most recent
		c.Put("c", []float32{3})

		if _, ok := c.Get("b"); ok {
			t.Error("b should have been evicted")
		}
		if _, ok := c.Get("a"); !ok {
			t.Error("a should have survived")
		}
		if c.Len() != 2 {
			t.Errorf("len = %d, want 2", c.Len())
		}
	})

	t.Run("default capacity", func(t *testing.T) {
		c := NewCache(0)
		for i := 0; i < DefaultCacheSize+5; i++ {
			c.Put(string(rune('a'+i)), []float32{float32(i)})
		}
		if c.Len() != DefaultCacheSize {
			t.Errorf("len = %d, want %d", c.Len(), DefaultCacheSize)
		}
	})
}
