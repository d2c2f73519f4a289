package model

import (
	"errors"
	"math"
	"testing"
)

func TestVerdictLabel_Prediction(t *testing.T) {
	tests := []struct {
		verdict VerdictLabel
		want    int
	}{
		{VerdictSupported, 1},
		{VerdictContradicted, 0},
		{VerdictUndetermined, 0},
	}
	for _, tt := range tests {
		if got := tt.verdict.Prediction(); got != tt.want {
			t.Errorf("%s: expected prediction %d, got %d", tt.verdict, tt.want, got)
		}
	}
}

func TestErrorVerdict(t *testing.T) {
	v := ErrorVerdict("42", "Failed to parse model response")
	if v.ClaimID != "42" || v.Verdict != VerdictUndetermined || v.Confidence != 0 {
		t.Errorf("unexpected error verdict: %+v", v)
	}
	if v.SupportingSpans == nil || v.ContradictingSpans == nil {
		t.Error("expected empty, non-nil span lists")
	}
	if !v.Error {
		t.Error("expected error flag to be set")
	}
}

func TestVerdict_Validate(t *testing.T) {
	ok := Verdict{ClaimID: "2", Verdict: VerdictSupported, Confidence: 0.8}
	if err := ok.Validate("2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ErrorVerdict("3", "API error: boom").Validate("3"); err != nil {
		t.Fatalf("error verdicts must validate: %v", err)
	}

	cases := map[string]Verdict{
		"unknown label":  {ClaimID: "2", Verdict: "maybe", Confidence: 0.5},
		"confidence > 1": {ClaimID: "2", Verdict: VerdictSupported, Confidence: 7.5},
		"negative":       {ClaimID: "2", Verdict: VerdictSupported, Confidence: -0.1},
		"NaN":            {ClaimID: "2", Verdict: VerdictSupported, Confidence: math.NaN()},
		"empty id":       {Verdict: VerdictSupported, Confidence: 0.5},
		"key mismatch":   {ClaimID: "9", Verdict: VerdictSupported, Confidence: 0.5},
	}
	for name, v := range cases {
		if err := v.Validate("2"); !errors.Is(err, ErrIntegrity) {
			t.Errorf("%s: expected ErrIntegrity, got %v", name, err)
		}
	}
}

func TestClampConfidence(t *testing.T) {
	cases := map[float64]float64{
		-1:          0,
		0.4:         0.4,
		3:           1,
		math.NaN():  0,
		math.Inf(1): 0,
	}
	for in, want := range cases {
		if got := ClampConfidence(in); got != want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	long := make([]rune, 250)
	for i := range long {
		long[i] = 'é'
	}
	got := []rune(TruncateRunes(string(long), 200, "..."))
	if len(got) != 200 {
		t.Fatalf("expected 200 runes, got %d", len(got))
	}
	if string(got[197:]) != "..." {
		t.Errorf("expected ellipsis suffix, got %q", string(got[197:]))
	}
	if TruncateRunes("short", 200, "...") != "short" {
		t.Error("short strings must be returned unchanged")
	}
}

func TestClaim_Validate(t *testing.T) {
	ok := Claim{ClaimID: "1", BookName: "The Count of Monte Cristo", Character: "Edmond Dantes", ClaimText: "He was imprisoned."}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := ok
	bad.ClaimText = "  "
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestEvidenceBundle_Validate(t *testing.T) {
	b := EvidenceBundle{ClaimID: "1", BookName: "b", Character: "c", ClaimText: "t"}
	if err := b.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty evidence, got %v", err)
	}

	b.Evidence = []Evidence{{SourceID: "b", Text: "passage"}}
	if err := b.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	b.Evidence = append(b.Evidence, Evidence{SourceID: "b"})
	if err := b.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for evidence without text, got %v", err)
	}
}

func TestRetrieveConfig_SearchK(t *testing.T) {
	cfg := DefaultConfig().Retrieve
	if cfg.SearchK() != 6 {
		t.Errorf("expected default search k 6, got %d", cfg.SearchK())
	}
	cfg.Oversample = 0
	if cfg.SearchK() != cfg.FinalK {
		t.Errorf("search k must never drop below final k")
	}
}
