package segment

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// HFTokenizer wraps a HuggingFace tokenizer.json (BPE / WordPiece) model.
// Its decoding is not guaranteed to be a byte-exact substring of the input,
// which is why offsets are always derived from decoded prefixes.
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
}

// LoadHFTokenizer loads a tokenizer.json file
func LoadHFTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

// Encode tokenizes text without special tokens
func (t *HFTokenizer) Encode(text string) ([]int, error) {
	en, err := t.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return en.Ids, nil
}

// Decode converts ids back to text, skipping special tokens
func (t *HFTokenizer) Decode(ids []int) (string, error) {
	return t.tk.Decode(ids, true), nil
}
