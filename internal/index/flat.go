package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ppiankov/veritas/internal/embed"
	"github.com/ppiankov/veritas/internal/model"
)

// FlatIndex is an exact in-memory inner-product index
type FlatIndex struct {
	buildID  uuid.UUID
	embedder string
	dim      int
	vectors  [][]float32
	segments []model.Segment
}

// BuildOptions tunes Build
type BuildOptions struct {
	BatchSize int
	Progress  func(done, total int)
}

// Build embeds every segment and inserts the normalized vectors in segment order
func Build(ctx context.Context, segments []model.Segment, e embed.Embedder, opts BuildOptions) (*FlatIndex, error) {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}

	var progress func(int)
	if opts.Progress != nil {
		progress = func(done int) { opts.Progress(done, len(texts)) }
	}

	vectors, err := embed.Batched(ctx, e, texts, opts.BatchSize, progress)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	return &FlatIndex{
		buildID:  uuid.New(),
		embedder: e.Name(),
		dim:      e.Dimension(),
		vectors:  vectors,
		segments: append([]model.Segment(nil), segments...),
	}, nil
}

// BuildID identifies this index and its metadata
func (f *FlatIndex) BuildID() uuid.UUID { return f.buildID }

// Dimension is the vector length
func (f *FlatIndex) Dimension() int { return f.dim }

func (f *FlatIndex) Len() int { return len(f.vectors) }

func (f *FlatIndex) EmbedderName() string { return f.embedder }

// Segments returns the metadata array, index-aligned with the vectors
func (f *FlatIndex) Segments() []model.Segment { return f.segments }

// Search scans every vector
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), f.dim)
	}
	if k <= 0 {
		return []Hit{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{Position: i, Score: embed.Dot(query, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Position < hits[b].Position
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	for len(hits) < k {
		hits = append(hits, Hit{Position: NoMatch})
	}
	return hits, nil
}

func (f *FlatIndex) Lookup(_ context.Context, position int) (model.Segment, error) {
	if position < 0 || position >= len(f.segments) {
		return model.Segment{}, fmt.Errorf("%w: position %d outside index of %d", model.ErrIntegrity, position, len(f.segments))
	}
	return f.segments[position], nil
}
