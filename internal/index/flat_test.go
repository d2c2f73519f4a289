package index

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veritas/internal/embed"
	"github.com/ppiankov/veritas/internal/model"
)

func testSegments() []model.Segment {
	texts := []string{
		"Edmond Dantes was wrongfully imprisoned for fourteen years in the Chateau d'If.",
		"Mercedes married Fernand while Dantes was away.",
		"Captain Nemo commanded the Nautilus beneath the sea.",
	}
	segs := make([]model.Segment, len(texts))
	for i, t := range texts {
		segs[i] = model.Segment{SourceID: "book", Index: i, CharStart: i * 100, CharEnd: i*100 + len(t), Text: t, TokenCount: 10}
	}
	return segs
}

func buildTestIndex(t *testing.T) (*FlatIndex, embed.Embedder) {
	t.Helper()
	e, err := embed.NewHashingEmbedder(128)
	require.NoError(t, err)
	idx, err := Build(context.Background(), testSegments(), e, BuildOptions{BatchSize: 2})
	require.NoError(t, err)
	return idx, e
}

func TestFlatIndex_Search(t *testing.T) {
	idx, e := buildTestIndex(t)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, "hashing-128", idx.EmbedderName())

	q, err := embed.EmbedOne(context.Background(), e, "Edmond Dantes: imprisoned for fourteen years")
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), q, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Position)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	seg, err := idx.Lookup(context.Background(), hits[0].Position)
	require.NoError(t, err)
	assert.Contains(t, seg.Text, "fourteen years")
}

func TestFlatIndex_SearchPadsWithNoMatch(t *testing.T) {
	idx, e := buildTestIndex(t)
	q, err := embed.EmbedOne(context.Background(), e, "sea")
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), q, 5)
	require.NoError(t, err)
	require.Len(t, hits, 5)
	assert.Equal(t, NoMatch, hits[3].Position)
	assert.Equal(t, NoMatch, hits[4].Position)

	_, err = idx.Lookup(context.Background(), NoMatch)
	assert.ErrorIs(t, err, model.ErrIntegrity)

	_, err = idx.Search(context.Background(), []float32{1, 2}, 1)
	assert.Error(t, err)
}

func TestFlatIndex_TiesBrokenByPosition(t *testing.T) {
	e, err := embed.NewHashingEmbedder(32)
	require.NoError(t, err)
	segs := []model.Segment{
		{SourceID: "a", Text: "same words", CharEnd: 10},
		{SourceID: "b", Text: "same words", CharEnd: 10},
	}
	idx, err := Build(context.Background(), segs, e, BuildOptions{})
	require.NoError(t, err)

	q, err := embed.EmbedOne(context.Background(), e, "same words")
	require.NoError(t, err)
	hits, err := idx.Search(context.Background(), q, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, 1, hits[1].Position)
}

func TestSaveLoad(t *testing.T) {
	idx, e := buildTestIndex(t)
	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, idx.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, idx.BuildID(), loaded.BuildID())
	assert.Equal(t, idx.Segments(), loaded.Segments())
	assert.Equal(t, idx.Dimension(), loaded.Dimension())
	assert.Equal(t, idx.EmbedderName(), loaded.EmbedderName())

	q, err := embed.EmbedOne(context.Background(), e, "Nautilus")
	require.NoError(t, err)
	want, err := idx.Search(context.Background(), q, 3)
	require.NoError(t, err)
	got, err := loaded.Search(context.Background(), q, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_Integrity(t *testing.T) {
	t.Run("nothing saved", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.ErrorIs(t, err, model.ErrInputMissing)
	})

	t.Run("vectors without metadata", func(t *testing.T) {
		idx, _ := buildTestIndex(t)
		dir := t.TempDir()
		require.NoError(t, idx.Save(dir))
		require.NoError(t, os.Remove(filepath.Join(dir, MetadataFile)))
		_, err := Load(dir)
		assert.ErrorIs(t, err, model.ErrIntegrity)
	})

	t.Run("metadata without vectors", func(t *testing.T) {
		idx, _ := buildTestIndex(t)
		dir := t.TempDir()
		require.NoError(t, idx.Save(dir))
		require.NoError(t, os.Remove(filepath.Join(dir, VectorsFile)))
		_, err := Load(dir)
		assert.ErrorIs(t, err, model.ErrIntegrity)
	})

	t.Run("mismatched builds", func(t *testing.T) {
		a, _ := buildTestIndex(t)
		b, _ := buildTestIndex(t)
		dirA, dirB := t.TempDir(), t.TempDir()
		require.NoError(t, a.Save(dirA))
		require.NoError(t, b.Save(dirB))

		meta, err := os.ReadFile(filepath.Join(dirB, MetadataFile))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dirA, MetadataFile), meta, 0644))

		_, err = Load(dirA)
		assert.ErrorIs(t, err, model.ErrIntegrity)
	})

	t.Run("header count larger than file", func(t *testing.T) {
		idx, _ := buildTestIndex(t)
		dir := t.TempDir()
		require.NoError(t, idx.Save(dir))
		path := filepath.Join(dir, VectorsFile)
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		binary.LittleEndian.PutUint32(raw[24:28], math.MaxUint32)
		binary.LittleEndian.PutUint32(raw[28:32], math.MaxUint32)
		require.NoError(t, os.WriteFile(path, raw, 0644))

		_, err = Load(dir)
		assert.ErrorIs(t, err, model.ErrIntegrity)
		assert.Contains(t, err.Error(), "header declares")
	})

	t.Run("truncated vectors", func(t *testing.T) {
		idx, _ := buildTestIndex(t)
		dir := t.TempDir()
		require.NoError(t, idx.Save(dir))
		path := filepath.Join(dir, VectorsFile)
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw[:len(raw)-8], 0644))

		_, err = Load(dir)
		assert.ErrorIs(t, err, model.ErrIntegrity)
	})
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), model.IndexConfig{Backend: "faiss"}, t.TempDir())
	assert.Error(t, err)
}
