// Package sku turns raw decoded barcode text into the part-number token that
// QC line items store for scan matching.
package sku

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	prefixLength = 6
	// MaxPasses bounds the prefix cleanup loop. A pass leaves the prefix as
	// clean as it can get, so the bound is only a guard.
	MaxPasses = 30
)

// punctuation is stripped from the prefix on every pass and from the whole
// token in the final pass.
const punctuation = `&#,+()@^$_~%":*?<>=!`

// Normalize upper-cases raw scanner output, drops hyphens and line breaks, then
// repeatedly cleans the leading six characters until they hold no punctuation,
// whitespace, braces or slashes. Empty input is returned unchanged.
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}

	// cases.Caser keeps state, so it is built per call.
	upper := cases.Upper(language.Und).String(raw)
	token := []rune(strings.Map(dropBreaks, upper))

	for pass := 0; pass < MaxPasses; pass++ {
		if len(token) <= prefixLength {
			break
		}
		if !containsForbidden(token) {
			return string(token)
		}

		cleaned := cleanPrefix(token)
		if len(cleaned) == len(token) && containsForbidden(token[:prefixLength]) {
			// Only braces, slashes and the like are left up front and no pass
			// removes those.
			break
		}
		token = cleaned

		if len(token) >= prefixLength && !containsForbidden(token[:prefixLength]) {
			return string(finalCleanup(token))
		}
	}

	if len(token) <= prefixLength {
		return string(trimLeading(token))
	}

	return string(token)
}

// Equal reports whether two normalized tokens name the same part.
func Equal(token, stored string) bool {
	return token != "" && strings.EqualFold(token, stored)
}

// cleanPrefix drops whitespace and punctuation from the front of the token
// until six characters are kept, so the leading six hold none of either.
func cleanPrefix(runes []rune) []rune {
	out := make([]rune, 0, len(runes))
	kept := 0
	for i, r := range runes {
		if kept == prefixLength {
			return append(out, runes[i:]...)
		}
		if unicode.IsSpace(r) || isPunctuation(r) {
			continue
		}
		out = append(out, r)
		kept++
	}
	return out
}

func dropBreaks(r rune) rune {
	switch r {
	case '-', '\n', '\r':
		return -1
	}
	return r
}

func isPunctuation(r rune) bool {
	return strings.ContainsRune(punctuation, r)
}

// isForbidden covers ASCII punctuation and symbols (braces and slashes included)
// and any whitespace.
func isForbidden(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	return r < unicode.MaxASCII && (unicode.IsPunct(r) || unicode.IsSymbol(r))
}

func containsForbidden(runes []rune) bool {
	for _, r := range runes {
		if isForbidden(r) {
			return true
		}
	}
	return false
}

func removeRunes(runes []rune, drop func(rune) bool) []rune {
	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		if !drop(r) {
			out = append(out, r)
		}
	}
	return out
}

func trimLeading(runes []rune) []rune {
	i := 0
	for i < len(runes) && isForbidden(runes[i]) {
		i++
	}
	return runes[i:]
}

// finalCleanup strips punctuation everywhere and cuts the token at the first
// whitespace or dot, dropping suffixes such as " PCS" or ".01".
func finalCleanup(runes []rune) []rune {
	cleaned := removeRunes(runes, isPunctuation)
	for i, r := range cleaned {
		if unicode.IsSpace(r) || r == '.' {
			return cleaned[:i]
		}
	}
	return cleaned
}
