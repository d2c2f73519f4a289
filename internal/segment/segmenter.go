package segment

import (
	"fmt"
	"unicode/utf8"

	"github.com/ppiankov/veritas/internal/model"
)

// Segmenter splits cleaned text into overlapping, token-bounded segments
type Segmenter struct {
	tokenizer     Tokenizer
	windowTokens  int
	overlapTokens int
}

// NewSegmenter validates the window geometry and returns a segmenter
func NewSegmenter(tok Tokenizer, windowTokens, overlapTokens int) (*Segmenter, error) {
	if tok == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	if windowTokens <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", windowTokens)
	}
	if overlapTokens < 0 || overlapTokens >= windowTokens {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", windowTokens, overlapTokens)
	}
	return &Segmenter{
		tokenizer:     tok,
		windowTokens:  windowTokens,
		overlapTokens: overlapTokens,
	}, nil
}

// Segment splits text (already cleaned) into segments attributed to sourceID.
// An empty text yields no segments.
func (s *Segmenter) Segment(sourceID, text string) ([]model.Segment, error) {
	ids, err := s.tokenizer.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize %s: %w", sourceID, err)
	}
	if len(ids) == 0 {
		return []model.Segment{}, nil
	}

	textLen := utf8.RuneCountInString(text)
	stride := s.windowTokens - s.overlapTokens
	offsets := newPrefixOffsets(s.tokenizer, ids)

	var segments []model.Segment
	for start := 0; ; start += stride {
		end := start + s.windowTokens
		if end > len(ids) {
			end = len(ids)
		}

		chunk, err := s.tokenizer.Decode(ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("decode %s segment %d: %w", sourceID, len(segments), err)
		}

		charStart, err := offsets.at(start)
		if err != nil {
			return nil, fmt.Errorf("offset %s segment %d: %w", sourceID, len(segments), err)
		}

		var charEnd int
		if end == len(ids) {
			charEnd = textLen
		} else if charEnd, err = offsets.at(end); err != nil {
			return nil, fmt.Errorf("offset %s segment %d: %w", sourceID, len(segments), err)
		}
		if charEnd <= charStart {
			charEnd = charStart + utf8.RuneCountInString(chunk)
		}
		if charEnd <= charStart {
			charEnd = charStart + 1
		}

		segments = append(segments, model.Segment{
			SourceID:   sourceID,
			Index:      len(segments),
			CharStart:  charStart,
			CharEnd:    charEnd,
			Text:       chunk,
			TokenCount: end - start,
		})

		if end >= len(ids) {
			break
		}
	}

	return segments, nil
}

// prefixOffsets computes the rune length of decode(ids[:n]). Decoding the whole prefix,
// rather than searching for the segment text in the source, keeps offsets exact even
// when a fragment occurs several times in the text.
type prefixOffsets struct {
	tokenizer Tokenizer
	ids       []int
	memo      map[int]int
}

func newPrefixOffsets(tok Tokenizer, ids []int) *prefixOffsets {
	return &prefixOffsets{tokenizer: tok, ids: ids, memo: map[int]int{0: 0}}
}

func (p *prefixOffsets) at(n int) (int, error) {
	if v, ok := p.memo[n]; ok {
		return v, nil
	}
	prefix, err := p.tokenizer.Decode(p.ids[:n])
	if err != nil {
		return 0, err
	}
	v := utf8.RuneCountInString(prefix)
	p.memo[n] = v
	return v, nil
}

// SegmentSources cleans and segments every source in order
func (s *Segmenter) SegmentSources(sources []Source) ([]model.Segment, error) {
	var all []model.Segment
	for _, src := range sources {
		segs, err := s.Segment(src.ID, Clean(src.Text))
		if err != nil {
			return nil, err
		}
		all = append(all, segs...)
	}
	return all, nil
}
