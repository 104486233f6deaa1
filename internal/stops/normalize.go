package stops

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// transformers are stateful, so each goroutine borrows its own
var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	},
}

// Normalize folds a stop name for searching: diacritics stripped, lowercased,
// internal whitespace collapsed to single spaces and trimmed.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	t := foldPool.Get().(transform.Transformer)
	t.Reset()
	folded, _, err := transform.String(t, s)
	foldPool.Put(t)
	if err != nil {
		folded = s
	}

	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// spaced treats hyphens as word separators so "saint-denis" and "saint denis" compare equal
func spaced(normalized string) string {
	if !strings.Contains(normalized, "-") {
		return normalized
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(normalized, "-", " ")), " ")
}
