package model

// Segment is a bounded, position-addressable span of cleaned source text
type Segment struct {
	SourceID   string `json:"source_id"`   // Source identifier (file stem of the novel)
	Index      int    `json:"index"`       // Zero-based sequence position within the source
	CharStart  int    `json:"char_start"`  // Inclusive rune offset into the cleaned text
	CharEnd    int    `json:"char_end"`    // Exclusive rune offset into the cleaned text
	Text       string `json:"text"`        // Decoded segment text
	TokenCount int    `json:"token_count"` // Number of tokens in the segment
}
