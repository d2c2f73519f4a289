package segment

import (
	"fmt"

	"github.com/ppiankov/veritas/internal/jsonl"
	"github.com/ppiankov/veritas/internal/model"
)

// Save writes the segment store, one record per line
func Save(path string, segments []model.Segment) error {
	return jsonl.Write(path, segments)
}

// Load reads the segment store written by Save
func Load(path string) ([]model.Segment, error) {
	segments, err := jsonl.Read[model.Segment](path)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	for i, s := range segments {
		if s.SourceID == "" || s.CharEnd <= s.CharStart {
			return nil, fmt.Errorf("load segments: %w: record %d has invalid source or range", model.ErrIntegrity, i)
		}
	}
	return segments, nil
}
