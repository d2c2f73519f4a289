// Package retrieve selects and re-ranks evidence segments for claims
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ppiankov/veritas/internal/embed"
	"github.com/ppiankov/veritas/internal/index"
	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/worker"
)

// Retriever builds evidence bundles against a loaded index
type Retriever struct {
	index    index.Searcher
	embedder embed.Embedder
	cfg      model.RetrieveConfig
	logger   *slog.Logger
}

// New creates a retriever. The embedder must be the one the index was built with.
func New(idx index.Searcher, e embed.Embedder, cfg model.RetrieveConfig, logger *slog.Logger) (*Retriever, error) {
	if cfg.FinalK <= 0 {
		return nil, fmt.Errorf("final_k must be positive, got %d", cfg.FinalK)
	}
	if name := idx.EmbedderName(); name != "" && name != e.Name() {
		return nil, fmt.Errorf("%w: index was built with %s but the configured embedder is %s", model.ErrIntegrity, name, e.Name())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{index: idx, embedder: e, cfg: cfg, logger: logger}, nil
}

// Query is the text embedded for a claim; leading with the character name
// pulls the search toward passages about that character
func Query(c model.Claim) string {
	return c.Character + ": " + c.ClaimText
}

// NormalizeSource lower-cases a source name and drops spaces and underscores
func NormalizeSource(name string) string {
	return strings.NewReplacer(" ", "", "_", "").Replace(strings.ToLower(name))
}

// SameSource reports whether a segment's source matches the claim's book
func SameSource(bookName, sourceID string) bool {
	a, b := NormalizeSource(bookName), NormalizeSource(sourceID)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Retrieve returns the ranked evidence bundle for one claim
func (r *Retriever) Retrieve(ctx context.Context, c model.Claim) (model.EvidenceBundle, error) {
	bundle := model.NewBundle(c)

	query, err := embed.EmbedOne(ctx, r.embedder, Query(c))
	if err != nil {
		return bundle, fmt.Errorf("embed query for claim %s: %w", c.ClaimID, err)
	}

	hits, err := r.index.Search(ctx, query, r.cfg.SearchK())
	if err != nil {
		return bundle, fmt.Errorf("search for claim %s: %w", c.ClaimID, err)
	}

	candidates := make([]model.Evidence, 0, len(hits))
	for _, h := range hits {
		if h.Position == index.NoMatch {
			continue
		}
		seg, err := r.index.Lookup(ctx, h.Position)
		if err != nil {
			return bundle, fmt.Errorf("claim %s: %w", c.ClaimID, err)
		}
		same := SameSource(c.BookName, seg.SourceID)
		score := h.Score
		if same {
			score += r.cfg.SameSourceBoost
		}
		candidates = append(candidates, model.Evidence{
			SegmentIdx: seg.Index,
			SourceID:   seg.SourceID,
			CharStart:  seg.CharStart,
			CharEnd:    seg.CharEnd,
			Text:       seg.Text,
			Score:      score,
			RawScore:   h.Score,
			SameSource: same,
			Position:   h.Position,
		})
	}

	Rank(candidates)
	if len(candidates) > r.cfg.FinalK {
		candidates = candidates[:r.cfg.FinalK]
	}
	bundle.Evidence = candidates

	r.logger.Debug("retrieved evidence", "claim_id", c.ClaimID, "candidates", len(hits), "kept", len(candidates))
	return bundle, nil
}

// Rank orders evidence by boosted score, then raw score, then index position
func Rank(ev []model.Evidence) {
	sort.SliceStable(ev, func(i, j int) bool {
		if ev[i].Score != ev[j].Score {
			return ev[i].Score > ev[j].Score
		}
		if ev[i].RawScore != ev[j].RawScore {
			return ev[i].RawScore > ev[j].RawScore
		}
		return ev[i].Position < ev[j].Position
	})
}

// RetrieveAll retrieves bundles for claims using cfg.Workers goroutines; the
// index is read-only so workers share it. Output order matches claims.
func (r *Retriever) RetrieveAll(ctx context.Context, claims []model.Claim, progress func(done, total int)) ([]model.EvidenceBundle, error) {
	fns := make([]worker.Func[model.EvidenceBundle], len(claims))
	for i, c := range claims {
		c := c
		fns[i] = func(ctx context.Context) (model.EvidenceBundle, error) {
			return r.Retrieve(ctx, c)
		}
	}

	done := 0
	results, err := worker.RunBatch(ctx, r.cfg.Workers, fns, func(worker.ItemResult[model.EvidenceBundle]) {
		done++
		if progress != nil {
			progress(done, len(claims))
		}
	})
	if err != nil {
		return nil, err
	}

	bundles := make([]model.EvidenceBundle, len(results))
	for i, res := range results {
		if res.Err != nil {
			return nil, res.Err
		}
		bundles[i] = res.Value
	}
	return bundles, nil
}
