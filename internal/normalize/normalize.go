// Package normalize provides text cleanup applied before pattern detection.
package normalize

import (
	"strings"
	"unicode"
)

// Unicode separators that commonly appear in scanned or OCR'd text.
var (
	// NBSP, figure space, narrow no-break, thin space, zero-width space.
	spaceVariants = []rune{'\u00a0', '\u2007', '\u202f', '\u2009', '\u200b'}
	// Hyphen, non-breaking hyphen, figure dash, en dash, em dash.
	dashVariants = []rune{'\u2010', '\u2011', '\u2012', '\u2013', '\u2014'}
)

// Separators replaces non-breaking/narrow/zero-width space variants with an
// ASCII space, Unicode dash variants with an ASCII hyphen, and collapses runs
// of horizontal whitespace into a single space. Newlines are left untouched.
// The function is idempotent.
func Separators(s string) string {
	if s == "" {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	inRun := false
	for _, r := range s {
		switch {
		case isSpaceVariant(r) || r == ' ' || r == '\t' || r == '\r' || r == '\f' || r == '\v':
			if !inRun {
				b.WriteByte(' ')
				inRun = true
			}
		case isDashVariant(r):
			b.WriteByte('-')
			inRun = false
		default:
			b.WriteRune(r)
			inRun = false
		}
	}

	return b.String()
}

// Digits keeps only decimal digit runes (any script, Unicode category Nd),
// mapping each to its ASCII value. Everything else is dropped, so the result
// length equals the count of digit runes in the input.
func Digits(s string) string {
	var b strings.Builder

	for _, r := range s {
		if unicode.IsDigit(r) {
			v := digitValue(r)
			if v >= 0 && v <= 9 {
				b.WriteByte(byte('0' + v))
			}
		}
	}

	return b.String()
}

// digitValue returns the numeric value of a decimal digit rune, or -1.
// Every Nd range in the Unicode tables is a stride-1 run aligned on its
// zero digit, so the offset within the range is the value.
func digitValue(r rune) int {
	if r >= '0' && r <= '9' {
		return int(r - '0')
	}
	if r <= 0xFFFF {
		for _, rng := range unicode.Nd.R16 {
			if uint16(r) >= rng.Lo && uint16(r) <= rng.Hi {
				return int(uint16(r)-rng.Lo) % 10
			}
		}
		return -1
	}
	for _, rng := range unicode.Nd.R32 {
		if uint32(r) >= rng.Lo && uint32(r) <= rng.Hi {
			return int(uint32(r)-rng.Lo) % 10
		}
	}
	return -1
}

func isSpaceVariant(r rune) bool {
	for _, v := range spaceVariants {
		if r == v {
			return true
		}
	}
	return false
}

func isDashVariant(r rune) bool {
	for _, v := range dashVariants {
		if r == v {
			return true
		}
	}
	return false
}
