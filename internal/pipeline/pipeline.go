package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ppiankov/veritas/internal/aggregate"
	"github.com/ppiankov/veritas/internal/claims"
	"github.com/ppiankov/veritas/internal/embed"
	"github.com/ppiankov/veritas/internal/index"
	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/reason"
	"github.com/ppiankov/veritas/internal/retrieve"
	"github.com/ppiankov/veritas/internal/segment"
	"github.com/ppiankov/veritas/internal/store"
)

// Store namespaces
const (
	EvidenceNamespace = "evidence"
	VerdictsNamespace = "verdicts"
)

// Pipeline runs the verification stages over on-disk artifacts
type Pipeline struct {
	config *model.Config
	logger *slog.Logger
	out    io.Writer // Progress lines for the terminal

	// NewBackend builds the reasoning backend; tests replace it
	NewBackend func(reason.Config) (reason.Backend, error)
}

// New creates a pipeline with the given configuration
func New(cfg *model.Config, logger *slog.Logger, out io.Writer) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Pipeline{
		config:     cfg,
		logger:     logger,
		out:        out,
		NewBackend: reason.NewBackend,
	}
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() *model.Config { return p.config }

// RunOptions controls Run
type RunOptions struct {
	StartFrom     Stage
	SkipReasoning bool
	Limit         int // Only the first Limit claims are retrieved and reasoned (0 = all)
}

// Run executes the stages from opts.StartFrom through aggregation
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) error {
	start := opts.StartFrom
	if start == "" {
		start = StageIngest
	}
	from := start.position()
	if from < 0 {
		return fmt.Errorf("unknown stage %q", start)
	}

	for _, st := range Stages[from:] {
		if st == StageReason && opts.SkipReasoning {
			p.logger.Info("skipping reasoning stage")
			fmt.Fprintf(p.out, "⏭  Skipping %s\n", st)
			continue
		}
		if err := p.RunStage(ctx, st, opts.Limit); err != nil {
			fmt.Fprintf(p.out, "✗ %s failed: %v\n", st, err)
			return fmt.Errorf("stage %s: %w", st, err)
		}
	}
	return nil
}

// RunStage executes a single stage
func (p *Pipeline) RunStage(ctx context.Context, st Stage, limit int) error {
	started := time.Now()
	fmt.Fprintf(p.out, "⚙️  Stage %s\n", st)

	var err error
	switch st {
	case StageIngest:
		_, err = p.Ingest(ctx)
	case StageIndex:
		_, err = p.BuildIndex(ctx)
	case StageClaims:
		_, err = p.IngestClaims(ctx)
	case StageRetrieve:
		_, err = p.Retrieve(ctx, limit)
	case StageReason:
		_, err = p.Reason(ctx, limit)
	case StageAggregate:
		_, err = p.Aggregate(ctx)
	default:
		err = fmt.Errorf("unknown stage %q", st)
	}
	if err != nil {
		return err
	}

	p.logger.Debug("stage finished", "stage", string(st), "elapsed", time.Since(started).Round(time.Millisecond).String())
	return nil
}

// Ingest segments every source document into the segment store
func (p *Pipeline) Ingest(_ context.Context) (int, error) {
	cfg := p.config

	sources, err := segment.LoadSources(cfg.Paths.SourcesDir)
	if err != nil {
		return 0, err
	}
	p.logger.Info("found sources", "dir", cfg.Paths.SourcesDir, "count", len(sources))

	tok, err := segment.NewTokenizer(cfg.Segment.Tokenizer, cfg.Segment.TokenizerFile)
	if err != nil {
		return 0, err
	}
	seg, err := segment.NewSegmenter(tok, cfg.Segment.WindowTokens, cfg.Segment.OverlapTokens)
	if err != nil {
		return 0, err
	}

	segments, err := seg.SegmentSources(sources)
	if err != nil {
		return 0, err
	}
	if err := segment.Save(cfg.Paths.SegmentsFile, segments); err != nil {
		return 0, fmt.Errorf("save segments: %w", err)
	}

	fmt.Fprintf(p.out, "✓ Segmented %d sources into %d segments → %s\n", len(sources), len(segments), cfg.Paths.SegmentsFile)
	return len(segments), nil
}

// BuildIndex embeds the segment store into the configured index backend
func (p *Pipeline) BuildIndex(ctx context.Context) (int, error) {
	cfg := p.config

	segments, err := segment.Load(cfg.Paths.SegmentsFile)
	if err != nil {
		return 0, err
	}
	if len(segments) == 0 {
		return 0, fmt.Errorf("%w: segment store %s is empty", model.ErrInputMissing, cfg.Paths.SegmentsFile)
	}

	e, err := embed.New(cfg.Embed, p.logger)
	if err != nil {
		return 0, fmt.Errorf("create embedder: %w", err)
	}
	defer func() { _ = embed.Close(e) }()

	p.logger.Info("building index", "segments", len(segments), "embedder", e.Name(), "backend", cfg.Index.Backend)
	idx, err := index.BuildAndSave(ctx, cfg.Index, cfg.Paths.IndexDir, segments, e, index.BuildOptions{
		BatchSize: cfg.Embed.BatchSize,
		Progress: func(done, total int) {
			p.logger.Debug("embedded segments", "done", done, "total", total)
		},
	})
	if err != nil {
		return 0, fmt.Errorf("build index: %w", err)
	}
	defer func() { _ = index.Close(idx) }()

	fmt.Fprintf(p.out, "✓ Indexed %d segments with %s\n", idx.Len(), e.Name())
	return idx.Len(), nil
}

// IngestClaims parses the claim CSV files into the claim store
func (p *Pipeline) IngestClaims(_ context.Context) (int, error) {
	cfg := p.config

	parsed, err := claims.ReadFiles(cfg.Paths.ClaimsCSV, p.logger)
	if err != nil {
		return 0, err
	}
	all, err := claims.Prepare(parsed, p.logger)
	if err != nil {
		return 0, err
	}
	if err := claims.Save(cfg.Paths.ClaimsFile, all); err != nil {
		return 0, fmt.Errorf("save claims: %w", err)
	}

	fmt.Fprintf(p.out, "✓ Parsed %d claims → %s\n", len(all), cfg.Paths.ClaimsFile)
	return len(all), nil
}

func (p *Pipeline) loadClaims(limit int) ([]model.Claim, error) {
	all, err := claims.Load(p.config.Paths.ClaimsFile)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(all) {
		p.logger.Info("limiting claims", "limit", limit, "total", len(all))
		all = all[:limit]
	}
	return all, nil
}

func (p *Pipeline) openStore(ctx context.Context, namespace, dir string) (store.Store, error) {
	s, err := store.New(ctx, p.config.Store, dir, namespace)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", namespace, err)
	}
	return s, nil
}

// Retrieve selects ranked evidence for each claim and persists one bundle per claim
func (p *Pipeline) Retrieve(ctx context.Context, limit int) (int, error) {
	cfg := p.config

	all, err := p.loadClaims(limit)
	if err != nil {
		return 0, err
	}
	cl, invalid := claims.Partition(all)
	for _, inv := range invalid {
		p.logger.Warn("skipping retrieval for invalid claim", "claim_id", inv.Claim.ClaimID, "error", inv.Err)
	}

	idx, err := index.Open(ctx, cfg.Index, cfg.Paths.IndexDir)
	if err != nil {
		return 0, fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = index.Close(idx) }()

	e, err := embed.New(cfg.Embed, p.logger)
	if err != nil {
		return 0, fmt.Errorf("create embedder: %w", err)
	}
	defer func() { _ = embed.Close(e) }()

	r, err := retrieve.New(idx, e, cfg.Retrieve, p.logger)
	if err != nil {
		return 0, err
	}

	bundles, err := r.RetrieveAll(ctx, cl, func(done, total int) {
		p.logger.Debug("retrieved", "done", done, "total", total)
	})
	if err != nil {
		return 0, err
	}

	evidence, err := p.openStore(ctx, EvidenceNamespace, cfg.Paths.EvidenceDir)
	if err != nil {
		return 0, err
	}
	defer func() { _ = evidence.Close() }()

	empty := 0
	for _, b := range bundles {
		if len(b.Evidence) == 0 {
			empty++
		}
		if err := store.PutJSON(ctx, evidence, b.ClaimID, b); err != nil {
			return 0, fmt.Errorf("persist evidence %s: %w", b.ClaimID, err)
		}
	}
	if empty > 0 {
		p.logger.Warn("claims without evidence", "count", empty)
	}

	fmt.Fprintf(p.out, "✓ Retrieved evidence for %d claims (k=%d)\n", len(bundles), cfg.Retrieve.FinalK)
	return len(bundles), nil
}

// Reason resolves a verdict for every claim with an evidence bundle. Claims
// that already have a verdict are skipped unless reason.force is set.
func (p *Pipeline) Reason(ctx context.Context, limit int) (reason.Stats, error) {
	cfg := p.config

	cl, err := p.loadClaims(limit)
	if err != nil {
		return reason.Stats{}, err
	}

	evidence, err := p.openStore(ctx, EvidenceNamespace, cfg.Paths.EvidenceDir)
	if err != nil {
		return reason.Stats{}, err
	}
	defer func() { _ = evidence.Close() }()

	// Invalid claims get an evidence-less bundle, which the resolver turns
	// into a persisted "Validation failed" verdict without calling the backend.
	var bundles []model.EvidenceBundle
	valid, loaded := 0, 0
	for _, c := range cl {
		if err := c.Validate(); err != nil {
			bundles = append(bundles, model.NewBundle(c))
			continue
		}
		valid++
		b, err := store.GetJSON[model.EvidenceBundle](ctx, evidence, c.ClaimID)
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("no evidence bundle, skipping claim", "claim_id", c.ClaimID)
			continue
		}
		if err != nil {
			return reason.Stats{}, err
		}
		loaded++
		bundles = append(bundles, b)
	}
	if valid > 0 && loaded == 0 {
		return reason.Stats{}, fmt.Errorf("%w: no evidence bundles (run retrieve first)", model.ErrInputMissing)
	}

	backend, err := p.NewBackend(reason.ConfigFromModel(cfg.Reason))
	if err != nil {
		return reason.Stats{}, fmt.Errorf("create backend: %w", err)
	}

	verdicts, err := p.openStore(ctx, VerdictsNamespace, cfg.Paths.VerdictsDir)
	if err != nil {
		return reason.Stats{}, err
	}
	defer func() { _ = verdicts.Close() }()

	p.logger.Info("resolving verdicts", "claims", len(bundles), "backend", backend.Name())
	resolver := reason.NewResolver(backend, verdicts, reason.OptionsFromModel(cfg.Reason), p.logger)
	stats, err := resolver.ResolveAll(ctx, bundles, func(done, total int, o reason.Outcome) {
		switch {
		case o.Skipped:
			p.logger.Debug("verdict exists", "claim_id", o.ClaimID)
		case o.Verdict.Error:
			fmt.Fprintf(p.out, "✗ [%d/%d] %s: %s\n", done, total, o.ClaimID, o.Verdict.Reasoning)
		default:
			fmt.Fprintf(p.out, "✓ [%d/%d] %s: %s (%.2f)\n", done, total, o.ClaimID, o.Verdict.Verdict, o.Verdict.Confidence)
		}
	})
	if err != nil {
		return stats, err
	}

	fmt.Fprintf(p.out, "✓ Verdicts: %d resolved, %d skipped, %d errors\n", stats.Resolved, stats.Skipped, stats.Errors)
	return stats, nil
}

// Aggregate joins every persisted verdict with its claim into the report
func (p *Pipeline) Aggregate(ctx context.Context) (model.Report, error) {
	cfg := p.config

	verdictStore, err := p.openStore(ctx, VerdictsNamespace, cfg.Paths.VerdictsDir)
	if err != nil {
		return model.Report{}, err
	}
	defer func() { _ = verdictStore.Close() }()

	verdicts, err := store.LoadVerdicts(ctx, verdictStore)
	if err != nil {
		return model.Report{}, err
	}
	if len(verdicts) == 0 {
		return model.Report{}, fmt.Errorf("%w: no verdicts found (run reason first)", model.ErrInputMissing)
	}

	cl, err := claims.Load(cfg.Paths.ClaimsFile)
	if errors.Is(err, model.ErrInputMissing) {
		p.logger.Warn("claim store missing, report rows will lack metadata", "path", cfg.Paths.ClaimsFile)
		cl = nil
	} else if err != nil {
		return model.Report{}, err
	}

	report := aggregate.Build(verdicts, cl, cfg.Aggregate.RationaleMax)
	summaryPath, err := aggregate.SaveReport(cfg.Paths.ReportFile, report)
	if err != nil {
		return model.Report{}, err
	}

	fmt.Fprintf(p.out, "✓ Wrote %d rows → %s (summary: %s)\n", len(report.Rows), cfg.Paths.ReportFile, summaryPath)
	aggregate.PrintSummary(p.out, report)
	return report, nil
}
