// Package textnorm canonicalizes free-form labels (neighborhood names,
// category tags) into comparison keys.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonASCII = runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })

// Key returns the canonical form of s: accents decomposed and every non-ASCII
// rune dropped, lowercased, surrounding whitespace trimmed. "MÉDICOS " and
// "medicos" share the key "medicos".
//
// Input that is not valid UTF-8 or fails to transform falls back to a plain
// lowercase and trim.
func Key(s string) string {
	if !utf8.ValidString(s) {
		return fallback(s)
	}

	// Chains carry state, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(nonASCII))
	out, _, err := transform.String(t, s)
	if err != nil {
		return fallback(s)
	}
	return strings.TrimSpace(strings.ToLower(out))
}

// Value applies Key to strings and returns every other value unchanged, so
// missing cells (nil) and numeric properties pass through.
func Value(v any) any {
	if s, ok := v.(string); ok {
		return Key(s)
	}
	return v
}

// Title converts a display name to title case ("SAN JUAN" -> "San Juan").
func Title(s string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(s))
}

// fallback lowercases ASCII letters byte by byte so undecodable bytes survive
// unchanged and a second pass yields the same key.
func fallback(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return strings.TrimSpace(string(b))
}
