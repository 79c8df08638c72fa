// Package unicode finds characters that hide or disguise text from a human
// reviewer: zero-width runs, bidi overrides, tag characters and mixed
// Cyrillic/Latin letters.
package unicode

import "unicode/utf8"

// Report counts the invisible and confusable characters in a turn.
type Report struct {
	ZeroWidth int

	// LongestZeroWidthRun is the longest run of consecutive zero-width
	// characters. A single joiner is common in emoji sequences; runs are not.
	LongestZeroWidthRun int

	// Bidi counts explicit directional overrides and isolates.
	Bidi int

	// Tags counts code points from the Unicode tag block, which render as
	// nothing and can carry an ASCII payload.
	Tags int

	// Cyrillic and Latin record whether letters of either script appear.
	// Both together is the mixed-script homoglyph signature.
	Cyrillic bool
	Latin    bool
}

// Clean reports whether no hidden characters were found.
func (r Report) Clean() bool { return r.ZeroWidth == 0 && r.Bidi == 0 && r.Tags == 0 }

// MixedScript reports whether the turn mixes Cyrillic and Latin letters.
func (r Report) MixedScript() bool { return r.Cyrillic && r.Latin }

// Scan walks the input once. It does not allocate.
func Scan(input string) Report {
	var rep Report
	run := 0

	for _, r := range input {
		if isZeroWidth(r) {
			rep.ZeroWidth++
			run++
			if run > rep.LongestZeroWidthRun {
				rep.LongestZeroWidthRun = run
			}
			continue
		}
		run = 0

		switch {
		case r < utf8.RuneSelf:
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
				rep.Latin = true
			}
		case r >= 0x0400 && r <= 0x04FF:
			rep.Cyrillic = true
		case isBidiOverride(r):
			rep.Bidi++
		case r >= 0xE0001 && r <= 0xE007F:
			rep.Tags++
		}
	}
	return rep
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u2060', '\u180E':
		return true
	}
	return false
}

func isBidiOverride(r rune) bool {
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}
