package reason

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veritas/internal/logging"
	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/store"
)

// scriptedBackend replays replies in order and repeats the last one
type scriptedBackend struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (b *scriptedBackend) Name() string                       { return "scripted" }
func (b *scriptedBackend) IsAvailable(_ context.Context) bool { return true }

func (b *scriptedBackend) Complete(_ context.Context, req Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.calls
	if i >= len(b.replies) {
		i = len(b.replies) - 1
	}
	b.calls++
	b.prompts = append(b.prompts, req.Prompt)
	return b.replies[i].text, b.replies[i].err
}

func (b *scriptedBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func reasonConfig(backend string) model.ReasonConfig {
	c := model.DefaultConfig().Reason
	c.Backend = backend
	return c
}

func testOptions() Options {
	return Options{
		MaxTokens:     256,
		EvidenceChars: 500,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
			Retryable:   IsTransient,
		},
	}
}

func testBundle(id string) model.EvidenceBundle {
	return model.EvidenceBundle{
		ClaimID:   id,
		BookName:  "The Count of Monte Cristo",
		Character: "Edmond Dantes",
		ClaimText: "He was imprisoned in the Chateau d'If.",
		Evidence: []model.Evidence{
			{SegmentIdx: 4, SourceID: "the_count_of_monte_cristo", CharStart: 100, CharEnd: 180, Text: "Dantes was taken to the Chateau d'If and thrown into a cell.", Score: 0.91, RawScore: 0.71, SameSource: true, Position: 4},
		},
	}
}

func newTestResolver(t *testing.T, backend Backend, opts Options) (*Resolver, *store.FSStore) {
	t.Helper()
	st, err := store.NewFSStore(filepath.Join(t.TempDir(), "verdicts"))
	require.NoError(t, err)
	return NewResolver(backend, st, opts, logging.Discard()), st
}

func TestResolver_ResolvesAndPersists(t *testing.T) {
	backend := &scriptedBackend{replies: []reply{{text: cannedReply}}}
	r, st := newTestResolver(t, backend, testOptions())

	out, err := r.Resolve(context.Background(), testBundle("1"))
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, out.State)
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, out.Skipped)

	v, err := store.GetJSON[model.Verdict](context.Background(), st, "1")
	require.NoError(t, err)
	assert.Equal(t, "1", v.ClaimID)
	assert.Equal(t, model.VerdictSupported, v.Verdict)
	assert.False(t, v.Error)

	require.Len(t, backend.prompts, 1)
	assert.Contains(t, backend.prompts[0], "Edmond Dantes")
	assert.Contains(t, backend.prompts[0], "the_count_of_monte_cristo")
}

func TestResolver_IdempotentRestart(t *testing.T) {
	backend := &scriptedBackend{replies: []reply{{text: cannedReply}}}
	r, st := newTestResolver(t, backend, testOptions())
	bundles := []model.EvidenceBundle{testBundle("1"), testBundle("2"), testBundle("3")}

	stats, err := r.ResolveAll(context.Background(), bundles, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Resolved)
	assert.Equal(t, 3, backend.Calls())

	before, err := os.ReadFile(filepath.Join(st.Dir(), "2.json"))
	require.NoError(t, err)

	stats, err = r.ResolveAll(context.Background(), bundles, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 0, stats.Resolved)
	assert.Equal(t, 3, backend.Calls(), "restart must not call the backend")

	after, err := os.ReadFile(filepath.Join(st.Dir(), "2.json"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestResolver_ForceOverwrites(t *testing.T) {
	backend := &scriptedBackend{replies: []reply{
		{text: cannedReply},
		{text: `{"verdict":"contradicted","confidence":0.8,"reasoning":"changed"}`},
	}}
	r, st := newTestResolver(t, backend, testOptions())
	_, err := r.Resolve(context.Background(), testBundle("1"))
	require.NoError(t, err)

	opts := testOptions()
	opts.Force = true
	forced := NewResolver(backend, st, opts, logging.Discard())
	out, err := forced.Resolve(context.Background(), testBundle("1"))
	require.NoError(t, err)
	assert.False(t, out.Skipped)

	v, err := store.GetJSON[model.Verdict](context.Background(), st, "1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictContradicted, v.Verdict)
	assert.Equal(t, 2, backend.Calls())
}

func TestResolver_MalformedReply(t *testing.T) {
	backend := &scriptedBackend{replies: []reply{{text: "The claim looks supported to me."}}}
	r, st := newTestResolver(t, backend, testOptions())

	out, err := r.Resolve(context.Background(), testBundle("1"))
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Calls(), "malformed replies are not retried")

	v, err := store.GetJSON[model.Verdict](context.Background(), st, "1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictUndetermined, v.Verdict)
	assert.Zero(t, v.Confidence)
	assert.True(t, v.Error)
	assert.Contains(t, v.Reasoning, "parse")
	assert.Equal(t, out.Verdict, v)
}

func TestResolver_RetriesExhausted(t *testing.T) {
	backend := &scriptedBackend{replies: []reply{
		{err: &BackendError{Kind: KindRateLimit, StatusCode: 429, Err: errors.New("rate limited")}},
	}}
	r, st := newTestResolver(t, backend, testOptions())

	out, err := r.Resolve(context.Background(), testBundle("1"))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, backend.Calls())

	v, err := store.GetJSON[model.Verdict](context.Background(), st, "1")
	require.NoError(t, err)
	assert.True(t, v.Error)
	assert.Equal(t, model.VerdictUndetermined, v.Verdict)
	assert.Contains(t, v.Reasoning, "retries")
	assert.Contains(t, v.Reasoning, "3 attempts")
}

func TestResolver_RecoversAfterTransient(t *testing.T) {
	backend := &scriptedBackend{replies: []reply{
		{err: &BackendError{Kind: KindServer, StatusCode: 503, Err: errors.New("unavailable")}},
		{text: cannedReply},
	}}
	r, _ := newTestResolver(t, backend, testOptions())

	out, err := r.Resolve(context.Background(), testBundle("1"))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	assert.False(t, out.Verdict.Error)
	assert.Equal(t, model.VerdictSupported, out.Verdict.Verdict)
}

func TestResolver_ClientErrorNotRetried(t *testing.T) {
	backend := &scriptedBackend{replies: []reply{
		{err: &BackendError{Kind: KindClient, StatusCode: 400, Err: errors.New("bad request")}},
	}}
	r, _ := newTestResolver(t, backend, testOptions())

	out, err := r.Resolve(context.Background(), testBundle("1"))
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Calls())
	assert.True(t, out.Verdict.Error)
	assert.Contains(t, out.Verdict.Reasoning, "API error")
}

func TestResolver_InvalidBundle(t *testing.T) {
	backend := &scriptedBackend{replies: []reply{{text: cannedReply}}}
	r, st := newTestResolver(t, backend, testOptions())

	b := testBundle("1")
	b.Evidence = nil
	out, err := r.Resolve(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 0, backend.Calls())
	assert.True(t, out.Verdict.Error)
	assert.Contains(t, out.Verdict.Reasoning, "Validation failed")

	ok, err := st.Exists(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = r.Resolve(context.Background(), model.EvidenceBundle{})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestResolver_CanceledDoesNotPersist(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &cancelingBackend{cancel: cancel}
	r, st := newTestResolver(t, backend, testOptions())

	_, err := r.Resolve(ctx, testBundle("1"))
	assert.ErrorIs(t, err, context.Canceled)

	ok, err := st.Exists(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// cancelingBackend cancels the run mid-call, as an interrupt would
type cancelingBackend struct {
	cancel context.CancelFunc
}

func (b *cancelingBackend) Name() string                       { return "canceling" }
func (b *cancelingBackend) IsAvailable(_ context.Context) bool { return true }
func (b *cancelingBackend) Complete(ctx context.Context, _ Request) (string, error) {
	b.cancel()
	return "", transportError(ctx, errors.New("connection reset"))
}

func TestResolveAll_Stats(t *testing.T) {
	backend := &scriptedBackend{replies: []reply{
		{text: cannedReply},
		{text: `{"verdict":"contradicted","confidence":0.7}`},
		{text: `{"verdict":"undetermined","confidence":0.2}`},
		{text: "not json"},
	}}
	r, _ := newTestResolver(t, backend, testOptions())

	var seen []int
	stats, err := r.ResolveAll(context.Background(),
		[]model.EvidenceBundle{testBundle("1"), testBundle("2"), testBundle("3"), testBundle("4")},
		func(done, total int, _ Outcome) {
			assert.Equal(t, 4, total)
			seen = append(seen, done)
		})
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 4, Resolved: 4, Supported: 1, Contradicted: 1, Undetermined: 1, Errors: 1, Calls: 4}, stats)
	assert.Equal(t, []int{1, 2, 3, 4}, seen)
}

func TestOptionsFromModel(t *testing.T) {
	cfg := reasonConfig("ollama")
	cfg.Force = true
	opts := OptionsFromModel(cfg)
	assert.True(t, opts.Force)
	assert.Equal(t, cfg.CallDelay, opts.CallDelay)
	assert.Equal(t, cfg.Retry.MaxAttempts, opts.Retry.MaxAttempts)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "persisted", StatePersisted.String())
}
