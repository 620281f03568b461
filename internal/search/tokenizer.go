package search

import (
	"strings"
	"unicode"
)

// Tokenizer turns text into the token multiset scored by the keyword index.
// The same Tokenizer must be applied to documents and queries.
type Tokenizer struct {
	minNgram int
	maxNgram int
}

// NewTokenizer returns a tokenizer for the given options. N-gram expansion
// is off unless both bounds are positive.
func NewTokenizer(opts CollectionOptions) (*Tokenizer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	t := &Tokenizer{}
	if opts.ngramEnabled() {
		t.minNgram, t.maxNgram = opts.MinNgram, opts.MaxNgram
	}
	return t, nil
}

// Tokenize lower-cases text, splits on periods and whitespace, drops
// punctuation and emits each word followed by its character n-grams.
// Duplicates are preserved.
func (t *Tokenizer) Tokenize(text string) []string {
	words := strings.Fields(normalize(text))

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		tokens = append(tokens, word)
		if t.minNgram == 0 {
			continue
		}

		runes := []rune(word)
		if len(runes) < t.minNgram {
			continue
		}
		for n := t.minNgram; n <= t.maxNgram; n++ {
			for i := 0; i+n <= len(runes); i++ {
				tokens = append(tokens, string(runes[i:i+n]))
			}
		}
	}
	return tokens
}

func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '.':
			b.WriteRune(' ')
		case isWordRune(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
