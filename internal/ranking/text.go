package ranking

import (
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/registry"
)

var (
	analyzerOnce sync.Once
	analyzeFn    func([]byte) analysis.TokenStream
)

// Tokenize splits text into lower-cased terms with English stop words removed, using the
// same standard analyzer the keyword index used. Falls back to whitespace splitting if the
// analyzer cannot be built.
func Tokenize(text string) []string {
	analyzerOnce.Do(func() {
		a, err := registry.NewCache().AnalyzerNamed(standard.Name)
		if err == nil && a != nil {
			analyzeFn = a.Analyze
		}
	})
	if analyzeFn == nil {
		return fallbackTokenize(text)
	}
	stream := analyzeFn([]byte(text))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) > 0 {
			out = append(out, string(tok.Term))
		}
	}
	return out
}

func fallbackTokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return fields
}

// termSet tokenizes text into a set.
func termSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// uniqueTerms tokenizes each input and returns the distinct terms in first-seen order.
func uniqueTerms(inputs ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, in := range inputs {
		for _, t := range Tokenize(in) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// normalizeText lowercases and collapses whitespace, with punctuation turned into spaces,
// so phrase containment checks are not defeated by formatting.
func normalizeText(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '+' || r == '#' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// containsPhrase reports whether phrase occurs in text on word boundaries.
// Both arguments must already be normalized.
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}
