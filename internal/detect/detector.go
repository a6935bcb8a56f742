// Package detect implements named pattern detectors that extract normalized
// candidate values from free text.
package detect

import (
	"fmt"
	"regexp"

	"github.com/pii-sweep/piisweep/internal/normalize"
)

// Normalizer converts a raw pattern match into its canonical form. Returning
// an empty string rejects the match.
type Normalizer func(raw string) string

// Detector is a single detection rule. Immutable once constructed.
type Detector struct {
	Name      string
	Pattern   *regexp.Regexp
	Normalize Normalizer // nil means pass the raw match through
	Desc      string
}

// Find runs the pattern over text in left-to-right non-overlapping mode and
// returns the normalized value of every accepted match, in match order.
// Rejected matches (normalizer returned empty) are dropped silently.
func (d Detector) Find(text string) []string {
	matches := d.Pattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	values := make([]string, 0, len(matches))
	for _, raw := range matches {
		val := raw
		if d.Normalize != nil {
			val = d.Normalize(raw)
		}
		if val != "" {
			values = append(values, val)
		}
	}

	return values
}

// sinPattern accepts either 9 digits with interleaved separators inside a
// bounded width, or 9 contiguous digits. \p{Nd} rather than \d so that
// non-ASCII digit scripts match; the normalizer folds them to ASCII.
var sinPattern = regexp.MustCompile(`(\p{Nd}[\p{Nd}\-\s_./]{7,24}\p{Nd})|(\p{Nd}{9})`)

// NormalizeSIN strips everything but digits and formats the result as
// DDD-DDD-DDD. Anything other than exactly 9 digits is rejected.
func NormalizeSIN(raw string) string {
	digits := normalize.Digits(raw)
	if len(digits) != 9 {
		return ""
	}
	return fmt.Sprintf("%s-%s-%s", digits[0:3], digits[3:6], digits[6:9])
}

// NewSIN returns the built-in Canadian SIN detector.
func NewSIN() Detector {
	return Detector{
		Name:      "NAS",
		Pattern:   sinPattern,
		Normalize: NormalizeSIN,
		Desc:      "Canadian SIN ###-###-### (separators and unicode digits accepted)",
	}
}
