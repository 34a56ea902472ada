// Package textutil provides text normalization used for brand URL keying and
// asset label matching.
//
// URL normalization guarantees that different spellings of the same site
// ("HTTPS://Example.com/", "example.com", "http://example.com") produce a
// single key, which the background job registry relies on for deduplication.
// Token matching lowercases via Unicode case folding, splits on
// non-alphanumeric characters, and filters tokens shorter than 3 characters.
package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// tokenSplitPattern matches non-alphanumeric character sequences for tokenization.
var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

var foldCaser = cases.Fold()

// Fold lowercases text using Unicode case folding.
func Fold(text string) string {
	return foldCaser.String(strings.TrimSpace(text))
}

// NormalizeURL reduces a site URL to a stable comparison key: case-folded,
// scheme and "www." prefix stripped, trailing slashes removed.
func NormalizeURL(raw string) string {
	key := Fold(raw)
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(key, prefix) {
			key = key[len(prefix):]
			break
		}
	}
	key = strings.TrimPrefix(key, "www.")
	key = strings.TrimRight(key, "/")
	return key
}

// Tokenize splits text into folded tokens, filtering short tokens.
func Tokenize(text string) []string {
	raw := tokenSplitPattern.Split(Fold(text), -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		token = strings.TrimSpace(token)
		if len(token) < 3 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// OverlapScore returns the fraction of label tokens present in the text,
// in [0, 1]. An empty label scores zero.
func OverlapScore(text, label string) float64 {
	labelTokens := Tokenize(label)
	if len(labelTokens) == 0 {
		return 0
	}
	textTokens := Tokenize(text)
	if len(textTokens) == 0 {
		return 0
	}
	present := make(map[string]struct{}, len(textTokens))
	for _, token := range textTokens {
		present[token] = struct{}{}
	}
	matched := 0
	for _, token := range labelTokens {
		if _, ok := present[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(labelTokens))
}

// ContainsFolded reports whether text contains label as a case-folded substring.
func ContainsFolded(text, label string) bool {
	label = Fold(label)
	if label == "" {
		return false
	}
	return strings.Contains(Fold(text), label)
}
