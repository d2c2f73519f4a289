package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veritas/internal/cache"
	"github.com/ppiankov/veritas/internal/logging"
	"github.com/ppiankov/veritas/internal/model"
)

func norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestHashingEmbedder(t *testing.T) {
	h, err := NewHashingEmbedder(256)
	require.NoError(t, err)

	vecs, err := Batched(context.Background(), h, []string{
		"Edmond Dantes was imprisoned for fourteen years.",
		"Edmond Dantes was wrongfully imprisoned for fourteen years in the Chateau d'If.",
		"The ball at the Morcerf house was lavish.",
	}, 2, nil)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	for _, v := range vecs {
		assert.Len(t, v, 256)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	}
	assert.Greater(t, Dot(vecs[0], vecs[1]), Dot(vecs[0], vecs[2]))

	again, err := h.Embed(context.Background(), []string{"Edmond Dantes was imprisoned for fourteen years."})
	require.NoError(t, err)
	assert.InDeltaSlice(t, vecs[0], Normalize(again[0]), 1e-6)

	_, err = NewHashingEmbedder(0)
	assert.Error(t, err)
}

func TestBatched_Progress(t *testing.T) {
	h, err := NewHashingEmbedder(8)
	require.NoError(t, err)

	var calls []int
	_, err = Batched(context.Background(), h, []string{"a", "b", "c", "d", "e"}, 2, func(done int) {
		calls = append(calls, done)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5}, calls)
}

func TestBatched_Canceled(t *testing.T) {
	h, err := NewHashingEmbedder(8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Batched(ctx, h, []string{"a"}, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type countingEmbedder struct {
	inner *HashingEmbedder
	texts atomic.Int64
}

func (c *countingEmbedder) Name() string   { return c.inner.Name() }
func (c *countingEmbedder) Dimension() int { return c.inner.Dimension() }
func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts.Add(int64(len(texts)))
	return c.inner.Embed(ctx, texts)
}

func TestCachedEmbedder(t *testing.T) {
	h, err := NewHashingEmbedder(16)
	require.NoError(t, err)
	inner := &countingEmbedder{inner: h}

	c := NewCachedEmbedder(inner, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, logging.Discard())

	first, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.texts.Load())

	second, err := c.Embed(context.Background(), []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), inner.texts.Load())

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
}

// shortEmbedder drops the last vector of every batch
type shortEmbedder struct{ *HashingEmbedder }

func (s shortEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.HashingEmbedder.Embed(ctx, texts)
	if err != nil || len(vecs) == 0 {
		return vecs, err
	}
	return vecs[:len(vecs)-1], nil
}

func TestCachedEmbedder_ShortReply(t *testing.T) {
	h, err := NewHashingEmbedder(16)
	require.NoError(t, err)
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	c := NewCachedEmbedder(shortEmbedder{h}, mem, time.Minute, logging.Discard())

	_, err = c.Embed(context.Background(), []string{"alpha", "beta"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 vectors for 2 texts")

	_, ok := mem.Get(cache.Key(h.Name(), "alpha"))
	assert.False(t, ok, "nothing is cached from a short reply")
}

func TestOpenAIEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		// answer out of order to exercise index placement
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder("test-key", server.URL+"/v1", "", 3)
	require.NoError(t, err)
	assert.Equal(t, "openai/text-embedding-3-small", e.Name())

	vecs, err := e.Embed(context.Background(), []string{"zero", "one"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0, 1, 0}, vecs[0])
	assert.Equal(t, []float32{1, 1, 0}, vecs[1])
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder("test-key", server.URL+"/v1", "m", 3)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), []string{"x"})
	assert.Error(t, err)

	_, err = NewOpenAIEmbedder("", "", "m", 3)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	cfg := model.DefaultConfig().Embed

	e, err := New(cfg, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, e)
	assert.Equal(t, 384, e.Dimension())
	assert.NoError(t, Close(e))

	cfg.CacheTTL = 0
	e, err = New(cfg, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &HashingEmbedder{}, e)

	cfg.Provider = "word2vec"
	_, err = New(cfg, logging.Discard())
	assert.Error(t, err)
}

func TestHugotEmbedder(t *testing.T) {
	if testing.Short() {
		t.Skip("downloads a model")
	}

	e, err := NewHugotEmbedder(DefaultHugotModel, t.TempDir(), 384)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := Batched(context.Background(), e, []string{"a prisoner escapes", "a sailor is jailed"}, 2, nil)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 384)
}
