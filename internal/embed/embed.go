// Package embed turns text into unit-length vectors for similarity search
package embed

import (
	"context"
	"fmt"
	"math"
)

// Embedder maps texts to fixed-dimension vectors
type Embedder interface {
	// Name identifies the model; vectors from different names are not comparable
	Name() string

	// Dimension is the length of every returned vector
	Dimension() int

	// Embed returns one vector per text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Normalize scales v to unit L2 norm in place. A zero vector is left unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Dot returns the inner product of two equal-length vectors
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Batched embeds texts in batches of at most size and normalizes every vector.
// progress, when non-nil, is called after each batch with the number embedded so far.
func Batched(ctx context.Context, e Embedder, texts []string, size int, progress func(done int)) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vecs))
		}
		for i, v := range vecs {
			if len(v) != e.Dimension() {
				return nil, fmt.Errorf("embed batch %d-%d: vector %d has dimension %d, want %d", start, end, i, len(v), e.Dimension())
			}
			out = append(out, Normalize(v))
		}
		if progress != nil {
			progress(len(out))
		}
	}
	return out, nil
}

// EmbedOne embeds and normalizes a single text
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := Batched(ctx, e, []string{text}, 1, nil)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
