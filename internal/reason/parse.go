package reason

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ppiankov/veritas/internal/model"
)

// defaultConfidence fills a reply that omits confidence
const defaultConfidence = 0.5

const noReasoning = "no reasoning provided"

var verdictSynonyms = map[string]model.VerdictLabel{
	"supported":     model.VerdictSupported,
	"support":       model.VerdictSupported,
	"supports":      model.VerdictSupported,
	"true":          model.VerdictSupported,
	"consistent":    model.VerdictSupported,
	"contradicted":  model.VerdictContradicted,
	"contradict":    model.VerdictContradicted,
	"contradicts":   model.VerdictContradicted,
	"false":         model.VerdictContradicted,
	"inconsistent":  model.VerdictContradicted,
	"undetermined":  model.VerdictUndetermined,
	"unknown":       model.VerdictUndetermined,
	"insufficient":  model.VerdictUndetermined,
	"indeterminate": model.VerdictUndetermined,
}

// StripFences removes markdown code-fence lines around a payload
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ParseVerdict coerces a backend reply into a verdict for claimID. The reply's
// own claim_id is ignored. Missing optional fields get defaults; a reply that is
// not a JSON object or has no recognizable verdict is a malformed error.
func ParseVerdict(raw string, claimID string) (model.Verdict, error) {
	payload := StripFences(raw)
	if payload == "" {
		return model.Verdict{}, malformed("failed to parse model response: empty reply")
	}

	var fields map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return model.Verdict{}, malformed("failed to parse model response: %v", err)
	}
	if fields == nil {
		return model.Verdict{}, malformed("failed to parse model response: not a JSON object")
	}
	if dec.More() {
		return model.Verdict{}, malformed("failed to parse model response: trailing data after JSON object")
	}

	var label string
	if err := json.Unmarshal(fields["verdict"], &label); err != nil {
		return model.Verdict{}, malformed("failed to parse model response: verdict is missing or not a string")
	}
	verdict, ok := verdictSynonyms[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return model.Verdict{}, malformed("failed to parse model response: unrecognized verdict %q", label)
	}

	return model.Verdict{
		ClaimID:            claimID,
		Verdict:            verdict,
		Confidence:         parseConfidence(fields["confidence"]),
		SupportingSpans:    parseSpans(fields["supporting_spans"]),
		ContradictingSpans: parseSpans(fields["contradicting_spans"]),
		Reasoning:          parseReasoning(fields["reasoning"]),
	}, nil
}

func parseConfidence(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return defaultConfidence
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if f, err := n.Float64(); err == nil {
			return model.ClampConfidence(f)
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if strings.HasSuffix(strings.TrimSpace(string(raw)), `%"`) {
				f /= 100
			}
			return model.ClampConfidence(f)
		}
	}

	return defaultConfidence
}

func parseReasoning(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return noReasoning
	}
	return model.TruncateRunes(strings.TrimSpace(s), model.MaxReasoningRunes, "...")
}

// parseSpans accepts source_id/segment_idx as well as book/chunk_idx keys and
// drops entries that are not objects
func parseSpans(raw json.RawMessage) []model.Span {
	spans := []model.Span{}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return spans
	}
	for _, item := range items {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(item, &m); err != nil || m == nil {
			continue
		}
		spans = append(spans, model.Span{
			SourceID:   stringField(m, "source_id", "book", "source"),
			SegmentIdx: intField(m, "segment_idx", "chunk_idx", "index"),
			CharStart:  intField(m, "char_start"),
			CharEnd:    intField(m, "char_end"),
			Text:       stringField(m, "text"),
		})
	}
	return spans
}

func stringField(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		var s string
		if err := json.Unmarshal(m[k], &s); err == nil {
			return s
		}
	}
	return ""
}

func intField(m map[string]json.RawMessage, keys ...string) int {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
			if f, err := n.Float64(); err == nil {
				return int(f)
			}
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				return i
			}
		}
	}
	return 0
}
