package model

import (
	"fmt"
	"math"
)

// VerdictLabel is the tri-state judgment for a claim
type VerdictLabel string

const (
	VerdictSupported    VerdictLabel = "supported"
	VerdictContradicted VerdictLabel = "contradicted"
	VerdictUndetermined VerdictLabel = "undetermined"
)

// Valid reports whether v is one of the three verdict values
func (v VerdictLabel) Valid() bool {
	switch v {
	case VerdictSupported, VerdictContradicted, VerdictUndetermined:
		return true
	}
	return false
}

// Prediction maps the verdict to the binary prediction (undetermined counts as unsupported)
func (v VerdictLabel) Prediction() int {
	if v == VerdictSupported {
		return 1
	}
	return 0
}

// Span references a passage cited by the backend
type Span struct {
	SourceID   string `json:"source_id"`
	SegmentIdx int    `json:"segment_idx"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	Text       string `json:"text"`
}

// Verdict is the resolved judgment for one claim
type Verdict struct {
	ClaimID            string       `json:"claim_id"`
	Verdict            VerdictLabel `json:"verdict"`
	Confidence         float64      `json:"confidence"`
	SupportingSpans    []Span       `json:"supporting_spans"`
	ContradictingSpans []Span       `json:"contradicting_spans"`
	Reasoning          string       `json:"reasoning"`
	Error              bool         `json:"error,omitempty"` // Set on synthesized error verdicts
}

// Validate checks a stored verdict read back under key. A record that fails
// is corrupt rather than a degraded judgment, so the error wraps ErrIntegrity.
func (v Verdict) Validate(key string) error {
	if v.ClaimID == "" {
		return fmt.Errorf("%w: verdict %q: claim_id is empty", ErrIntegrity, key)
	}
	if v.ClaimID != key {
		return fmt.Errorf("%w: verdict %q: claim_id %q does not match key", ErrIntegrity, key, v.ClaimID)
	}
	if !v.Verdict.Valid() {
		return fmt.Errorf("%w: verdict %q: unknown label %q", ErrIntegrity, key, v.Verdict)
	}
	if math.IsNaN(v.Confidence) || math.IsInf(v.Confidence, 0) || v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("%w: verdict %q: confidence %v outside [0,1]", ErrIntegrity, key, v.Confidence)
	}
	return nil
}

// MaxReasoningRunes bounds the reasoning string of a verdict
const MaxReasoningRunes = 400

// ErrorVerdict builds the undetermined verdict used when no valid judgment was obtained
func ErrorVerdict(claimID string, message string) Verdict {
	return Verdict{
		ClaimID:            claimID,
		Verdict:            VerdictUndetermined,
		Confidence:         0.0,
		SupportingSpans:    []Span{},
		ContradictingSpans: []Span{},
		Reasoning:          TruncateRunes(message, MaxReasoningRunes, "..."),
		Error:              true,
	}
}

// ClampConfidence forces a confidence into [0,1]; non-finite values become 0
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

// TruncateRunes shortens s to at most max runes, ending with marker when cut
func TruncateRunes(s string, max int, marker string) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	m := []rune(marker)
	if len(m) >= max {
		return string(runes[:max])
	}
	return string(runes[:max-len(m)]) + marker
}
