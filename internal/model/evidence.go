package model

import (
	"fmt"
	"strings"
)

// Evidence is one ranked segment selected as support for judging a claim
type Evidence struct {
	SegmentIdx int     `json:"segment_idx"`
	SourceID   string  `json:"source_id"`
	CharStart  int     `json:"char_start"`
	CharEnd    int     `json:"char_end"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`       // Adjusted (boosted) score
	RawScore   float64 `json:"raw_score"`   // Cosine similarity before boosting
	SameSource bool    `json:"same_source"` // Whether the segment comes from the claim's book
	Position   int     `json:"position"`    // Index insertion position, used for tie-breaking
}

// EvidenceBundle is the ranked evidence set for one claim
type EvidenceBundle struct {
	ClaimID   string     `json:"claim_id"`
	BookName  string     `json:"book_name"`
	Character string     `json:"character"`
	ClaimText string     `json:"claim_text"`
	Evidence  []Evidence `json:"evidence"`
}

// NewBundle starts an evidence bundle for c with no evidence yet
func NewBundle(c Claim) EvidenceBundle {
	return EvidenceBundle{
		ClaimID:   c.ClaimID,
		BookName:  c.BookName,
		Character: c.Character,
		ClaimText: c.ClaimText,
		Evidence:  []Evidence{},
	}
}

// Validate rejects bundles that cannot be sent to a reasoning backend
func (b EvidenceBundle) Validate() error {
	if strings.TrimSpace(b.ClaimID) == "" {
		return fmt.Errorf("%w: bundle claim_id is empty", ErrValidation)
	}
	if strings.TrimSpace(b.ClaimText) == "" {
		return fmt.Errorf("%w: bundle %s: claim_text is empty", ErrValidation, b.ClaimID)
	}
	if strings.TrimSpace(b.BookName) == "" {
		return fmt.Errorf("%w: bundle %s: book_name is empty", ErrValidation, b.ClaimID)
	}
	if strings.TrimSpace(b.Character) == "" {
		return fmt.Errorf("%w: bundle %s: character is empty", ErrValidation, b.ClaimID)
	}
	if len(b.Evidence) == 0 {
		return fmt.Errorf("%w: bundle %s: evidence list is empty", ErrValidation, b.ClaimID)
	}
	for i, ev := range b.Evidence {
		if strings.TrimSpace(ev.SourceID) == "" {
			return fmt.Errorf("%w: bundle %s: evidence %d missing source_id", ErrValidation, b.ClaimID, i)
		}
		if strings.TrimSpace(ev.Text) == "" {
			return fmt.Errorf("%w: bundle %s: evidence %d missing text", ErrValidation, b.ClaimID, i)
		}
	}
	return nil
}
