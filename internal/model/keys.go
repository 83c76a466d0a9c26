package model

import (
	"strings"
	"unicode"
)

// FuzzyKey is the normalized (title, company, location) tuple used by the
// fuzzy dedup tier.
type FuzzyKey struct {
	Title    string
	Company  string
	Location string
}

// String joins the key parts; used for lock hashing and map keys.
func (k FuzzyKey) String() string {
	return k.Title + "|" + k.Company + "|" + k.Location
}

// FuzzyKey returns the normalized identity tuple of p.
func (p Posting) FuzzyKey() FuzzyKey {
	return FuzzyKey{
		Title:    NormalizeKeyPart(p.Title),
		Company:  NormalizeKeyPart(p.Company),
		Location: NormalizeKeyPart(p.Location),
	}
}

// NormalizeKeyPart lowercases s, drops punctuation and collapses whitespace.
func NormalizeKeyPart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}
