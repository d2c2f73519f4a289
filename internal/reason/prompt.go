package reason

import (
	"fmt"
	"strings"

	"github.com/ppiankov/veritas/internal/model"
)

// SystemPrompt pins the backend to a single JSON object reply
const SystemPrompt = `You are a strict, precise reasoning assistant. You will output EXACTLY one valid JSON object and nothing else. Do not add text, commentary, or markdown. Use double quotes for strings, no trailing commas, and valid JSON arrays even if empty.`

// BuildPrompt renders the claim and its ranked evidence. Each passage text is
// cut to maxChars runes (0 keeps the full text).
func BuildPrompt(b model.EvidenceBundle, maxChars int) string {
	var sections []string
	for i, ev := range b.Evidence {
		text := ev.Text
		if maxChars > 0 {
			if r := []rune(text); len(r) > maxChars {
				text = string(r[:maxChars])
			}
		}
		sections = append(sections, fmt.Sprintf(
			"Evidence %d:\nSOURCE_ID: %q\nSEGMENT_IDX: %d\nCHAR_START: %d\nCHAR_END: %d\nTEXT:\n\"\"\"\n%s\n\"\"\"",
			i+1, ev.SourceID, ev.SegmentIdx, ev.CharStart, ev.CharEnd, text))
	}
	n := len(b.Evidence)

	return fmt.Sprintf(`CLAIM_ID: %q
CHARACTER: %q
CLAIM_TEXT: %q

EVIDENCE (%d passages). Each passage has SOURCE_ID, SEGMENT_IDX, CHAR_START, CHAR_END, TEXT:
%s

TASK:
Based only on the %d evidence passages above, decide whether the CLAIM_TEXT is "supported", "contradicted", or "undetermined".

Return a single JSON object with exactly the following keys and types:

{
  "claim_id": "<string>",
  "verdict": "supported" | "contradicted" | "undetermined",
  "confidence": <float between 0 and 1>,
  "supporting_spans": [
    {"source_id": "<string>", "segment_idx": <int>, "char_start": <int>, "char_end": <int>, "text": "<string>"}
  ],
  "contradicting_spans": [
    {"source_id": "<string>", "segment_idx": <int>, "char_start": <int>, "char_end": <int>, "text": "<string>"}
  ],
  "reasoning": "<one-sentence justification, max 30 words>"
}

DECISION RULES (must follow):
1. "supported" if evidence contains direct text that entails the claim.
2. "contradicted" if any evidence explicitly negates or makes the claim impossible.
3. Otherwise "undetermined".
4. If both support and contradiction are present, choose "contradicted" only if contradiction is explicit and direct.
5. Confidence should reflect strength: strong entailment/contradiction -> >=0.75; weak signals -> 0.40-0.74; no clear signal -> <=0.39.
6. If unsure, use "undetermined" with confidence <= 0.50.
7. The "reasoning" field must be a single concise sentence citing which evidence.

OUTPUT RULES (strict):
- Produce JSON only. No extra whitespace outside JSON.
- Use empty arrays [] for spans when none apply.
- Strings must be properly escaped and under %d characters for "reasoning".
- Numeric fields must be numbers (no quotes).`,
		b.ClaimID, b.Character, b.ClaimText, n, strings.Join(sections, "\n\n"), n, model.MaxReasoningRunes)
}
