package reason

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/store"
	"github.com/ppiankov/veritas/internal/worker"
)

// State is the lifecycle position of one claim in the resolver
type State int

const (
	StatePending State = iota
	StateCalling
	StateRetrying
	StateResolved
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCalling:
		return "calling"
	case StateRetrying:
		return "retrying"
	case StateResolved:
		return "resolved"
	case StatePersisted:
		return "persisted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options tunes a Resolver
type Options struct {
	MaxTokens     int
	Temperature   float64
	EvidenceChars int
	CallDelay     time.Duration
	Force         bool
	Retry         RetryPolicy
}

// OptionsFromModel maps configuration onto resolver options
func OptionsFromModel(cfg model.ReasonConfig) Options {
	return Options{
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		EvidenceChars: cfg.EvidenceChars,
		CallDelay:     cfg.CallDelay,
		Force:         cfg.Force,
		Retry:         PolicyFromModel(cfg.Retry),
	}
}

// Outcome describes what happened to one claim
type Outcome struct {
	ClaimID  string
	Verdict  model.Verdict
	State    State
	Skipped  bool // Already persisted; no backend call was made
	Attempts int
}

// Stats summarizes a ResolveAll run
type Stats struct {
	Total        int
	Skipped      int
	Resolved     int
	Supported    int
	Contradicted int
	Undetermined int
	Errors       int
	Calls        int
}

// Resolver turns evidence bundles into persisted verdicts
type Resolver struct {
	backend  Backend
	verdicts store.Store
	limiter  *worker.Limiter
	opts     Options
	logger   *slog.Logger
}

// NewResolver creates a resolver. Calls to the backend are spaced by opts.CallDelay.
func NewResolver(backend Backend, verdicts store.Store, opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		backend:  backend,
		verdicts: verdicts,
		limiter:  worker.NewIntervalLimiter(opts.CallDelay),
		opts:     opts,
		logger:   logger,
	}
}

func (r *Resolver) transition(claimID string, from, to State) {
	r.logger.Debug("claim state", "claim_id", claimID, "from", from.String(), "to", to.String())
}

// Resolve produces and persists the verdict for one bundle. A claim that already
// has a persisted verdict is skipped unless Force is set. Only storage failures
// and cancellation are returned as errors; backend problems become error verdicts.
func (r *Resolver) Resolve(ctx context.Context, bundle model.EvidenceBundle) (Outcome, error) {
	out := Outcome{ClaimID: bundle.ClaimID, State: StatePending}

	if bundle.ClaimID == "" {
		return out, fmt.Errorf("%w: bundle has no claim_id", model.ErrValidation)
	}

	if !r.opts.Force {
		exists, err := r.verdicts.Exists(ctx, bundle.ClaimID)
		if err != nil {
			return out, fmt.Errorf("check verdict %s: %w", bundle.ClaimID, err)
		}
		if exists {
			out.Skipped = true
			out.State = StatePersisted
			r.logger.Debug("verdict exists, skipping", "claim_id", bundle.ClaimID)
			return out, nil
		}
	}

	verdict, attempts, err := r.judge(ctx, bundle)
	out.Attempts = attempts
	if err != nil {
		return out, err
	}
	r.transition(bundle.ClaimID, StateCalling, StateResolved)
	out.State = StateResolved
	out.Verdict = verdict

	if err := store.PutJSON(ctx, r.verdicts, bundle.ClaimID, verdict); err != nil {
		return out, fmt.Errorf("persist verdict %s: %w", bundle.ClaimID, err)
	}
	r.transition(bundle.ClaimID, StateResolved, StatePersisted)
	out.State = StatePersisted
	return out, nil
}

// judge obtains a verdict, synthesizing an error verdict for every failure
// except cancellation
func (r *Resolver) judge(ctx context.Context, bundle model.EvidenceBundle) (model.Verdict, int, error) {
	if err := bundle.Validate(); err != nil {
		r.logger.Warn("invalid evidence bundle", "claim_id", bundle.ClaimID, "error", err)
		return model.ErrorVerdict(bundle.ClaimID, fmt.Sprintf("Validation failed: %v", err)), 0, nil
	}

	req := Request{
		ClaimID:     bundle.ClaimID,
		System:      SystemPrompt,
		Prompt:      BuildPrompt(bundle, r.opts.EvidenceChars),
		MaxTokens:   r.opts.MaxTokens,
		Temperature: r.opts.Temperature,
	}

	var verdict model.Verdict
	state := StatePending
	attempts, err := r.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := r.limiter.Wait(ctx, r.backend.Name()); err != nil {
			return err
		}
		r.transition(bundle.ClaimID, state, StateCalling)
		state = StateCalling

		raw, err := r.backend.Complete(ctx, req)
		if err != nil {
			return err
		}
		v, err := ParseVerdict(raw, bundle.ClaimID)
		if err != nil {
			r.logger.Debug("unparseable reply", "claim_id", bundle.ClaimID, "reply", model.TruncateRunes(raw, 200, "..."))
			return err
		}
		verdict = v
		return nil
	}, func(err error, attempt int, wait time.Duration) {
		r.transition(bundle.ClaimID, state, StateRetrying)
		state = StateRetrying
		r.logger.Warn("transient backend failure, retrying",
			"claim_id", bundle.ClaimID,
			"attempt", attempt,
			"max", r.opts.Retry.MaxAttempts,
			"delay", wait.Round(time.Millisecond).String(),
			"error", err)
	})

	switch {
	case err == nil:
		if attempts > 1 {
			r.logger.Info("succeeded after retries", "claim_id", bundle.ClaimID, "attempts", attempts)
		}
		return verdict, attempts, nil
	case ctx.Err() != nil:
		return model.Verdict{}, attempts, ctx.Err()
	case errors.Is(err, ErrRetriesExhausted):
		r.logger.Error("retries exhausted", "claim_id", bundle.ClaimID, "attempts", attempts, "error", err)
		return model.ErrorVerdict(bundle.ClaimID, fmt.Sprintf("Max retries exceeded after %d attempts: %v", attempts, lastCause(err))), attempts, nil
	case IsMalformed(err):
		r.logger.Warn("malformed backend reply", "claim_id", bundle.ClaimID, "error", err)
		return model.ErrorVerdict(bundle.ClaimID, unwrapMessage(err)), attempts, nil
	default:
		r.logger.Error("backend error (non-retryable)", "claim_id", bundle.ClaimID, "error", err)
		return model.ErrorVerdict(bundle.ClaimID, fmt.Sprintf("API error: %v", err)), attempts, nil
	}
}

// lastCause returns the BackendError inside an exhaustion error
func lastCause(err error) error {
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	return err
}

// unwrapMessage returns the message of the innermost cause of a BackendError
func unwrapMessage(err error) string {
	var be *BackendError
	if errors.As(err, &be) && be.Err != nil {
		return be.Err.Error()
	}
	return err.Error()
}

// ResolveAll resolves bundles in order, one backend call at a time
func (r *Resolver) ResolveAll(ctx context.Context, bundles []model.EvidenceBundle, progress func(done, total int, o Outcome)) (Stats, error) {
	stats := Stats{Total: len(bundles)}
	for i, b := range bundles {
		o, err := r.Resolve(ctx, b)
		if err != nil {
			return stats, err
		}
		if o.Skipped {
			stats.Skipped++
		} else {
			stats.Resolved++
			stats.Calls += o.Attempts
			if o.Verdict.Error {
				stats.Errors++
			} else {
				switch o.Verdict.Verdict {
				case model.VerdictSupported:
					stats.Supported++
				case model.VerdictContradicted:
					stats.Contradicted++
				default:
					stats.Undetermined++
				}
			}
		}
		if progress != nil {
			progress(i+1, len(bundles), o)
		}
	}
	return stats, nil
}
