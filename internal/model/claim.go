package model

import (
	"fmt"
	"strings"
)

// Claim is an assertion about a character that is checked against the source text
type Claim struct {
	ClaimID   string `json:"claim_id"`
	BookName  string `json:"book_name"`
	Character string `json:"character"`
	Caption   string `json:"caption,omitempty"`
	ClaimText string `json:"claim_text"`
	Source    string `json:"source,omitempty"` // Origin of the record (e.g., "train", "test")
	Label     string `json:"label,omitempty"`  // Optional ground truth ("consistent" / "contradict")
}

// HasLabel reports whether the claim carries a ground-truth label
func (c Claim) HasLabel() bool {
	return strings.TrimSpace(c.Label) != ""
}

// LabelValue maps the ground-truth label to a binary value ("consistent" -> 1)
func (c Claim) LabelValue() int {
	if strings.EqualFold(strings.TrimSpace(c.Label), "consistent") {
		return 1
	}
	return 0
}

// Validate checks the fields every stage relies on
func (c Claim) Validate() error {
	if strings.TrimSpace(c.ClaimID) == "" {
		return fmt.Errorf("%w: claim_id is empty", ErrValidation)
	}
	if strings.TrimSpace(c.ClaimText) == "" {
		return fmt.Errorf("%w: claim %s: claim_text is empty", ErrValidation, c.ClaimID)
	}
	if strings.TrimSpace(c.BookName) == "" {
		return fmt.Errorf("%w: claim %s: book_name is empty", ErrValidation, c.ClaimID)
	}
	if strings.TrimSpace(c.Character) == "" {
		return fmt.Errorf("%w: claim %s: character is empty", ErrValidation, c.ClaimID)
	}
	return nil
}
