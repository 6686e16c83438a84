// Package tokenizer provides text analysis for the search engine. Input is
// NFKC-normalised, lower-cased and split on UAX#29 word boundaries. The
// English analyzer additionally removes stop-words and applies a simple
// suffix-based stemmer.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Analyzer turns field text into index terms.
type Analyzer interface {
	Name() string
	Tokenize(text string) []Token
}

const (
	StandardName = "standard"
	EnglishName  = "english"
)

// Standard case-folds and splits words. Every word is kept.
type Standard struct{}

func (Standard) Name() string { return StandardName }

func (Standard) Tokenize(text string) []Token {
	return tokenize(text, false)
}

// English is Standard plus stop-word removal and stemming.
type English struct{}

func (English) Name() string { return EnglishName }

func (English) Tokenize(text string) []Token {
	return tokenize(text, true)
}

// ByName resolves an analyzer from configuration.
func ByName(name string) (Analyzer, error) {
	switch strings.ToLower(name) {
	case "", StandardName:
		return Standard{}, nil
	case EnglishName:
		return English{}, nil
	default:
		return nil, fmt.Errorf("unknown analyzer %q", name)
	}
}

// Terms returns only the terms a produces for text, in order.
func Terms(a Analyzer, text string) []string {
	tokens := a.Tokenize(text)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Term
	}
	return out
}

func tokenize(text string, english bool) []Token {
	text = strings.ToLower(norm.NFKC.String(text))
	segments := words.FromString(text)
	tokens := make([]Token, 0, len(text)/6)
	pos := 0
	for segments.Next() {
		word := segments.Value()
		if !isWord(word) {
			continue
		}
		if english {
			if len(word) < 2 {
				continue
			}
			if _, isStop := stopWords[word]; isStop {
				continue
			}
			word = stem(word)
			if word == "" {
				continue
			}
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// isWord drops whitespace and punctuation segments.
func isWord(segment string) bool {
	for _, r := range segment {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}

var suffixes = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}
