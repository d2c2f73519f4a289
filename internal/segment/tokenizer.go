package segment

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Tokenizer converts text to token ids and back
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// wordPattern splits text into word tokens carrying their trailing whitespace, so that
// concatenating any run of tokens reproduces the exact source substring
var wordPattern = regexp.MustCompile(`\S+\s*|\s+`)

// WordTokenizer is a lossless whitespace-delimited tokenizer with a growing vocabulary
type WordTokenizer struct {
	mu    sync.RWMutex
	ids   map[string]int
	vocab []string
}

// NewWordTokenizer creates an empty word tokenizer
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{
		ids: make(map[string]int),
	}
}

// Encode tokenizes text, assigning new ids to unseen pieces
func (t *WordTokenizer) Encode(text string) ([]int, error) {
	pieces := wordPattern.FindAllString(text, -1)
	out := make([]int, len(pieces))

	t.mu.Lock()
	defer t.mu.Unlock()

	for i, p := range pieces {
		id, ok := t.ids[p]
		if !ok {
			id = len(t.vocab)
			t.ids[p] = id
			t.vocab = append(t.vocab, p)
		}
		out[i] = id
	}
	return out, nil
}

// Decode concatenates the pieces for ids
func (t *WordTokenizer) Decode(ids []int) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.vocab) {
			return "", fmt.Errorf("unknown token id %d", id)
		}
		b.WriteString(t.vocab[id])
	}
	return b.String(), nil
}

// NewTokenizer builds the tokenizer named by kind ("words" or "hf")
func NewTokenizer(kind string, file string) (Tokenizer, error) {
	switch strings.ToLower(kind) {
	case "", "words":
		return NewWordTokenizer(), nil
	case "hf", "huggingface":
		if file == "" {
			return nil, fmt.Errorf("hf tokenizer requires a tokenizer.json file")
		}
		return LoadHFTokenizer(file)
	default:
		return nil, fmt.Errorf("unknown tokenizer: %s (supported: words, hf)", kind)
	}
}
