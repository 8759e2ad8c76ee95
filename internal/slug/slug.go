// Package slug derives URL-safe identifiers from display names.
package slug

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Fallback is used when a name has no usable characters.
const Fallback = "item"

// Make converts a display name into a lowercase, hyphen-separated slug.
// Accents are stripped ("Café Sensor" → "cafe-sensor").
func Make(name string) string {
	var b strings.Builder
	hyphen := false

	for _, r := range norm.NFKD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// Combining mark left over from decomposition.
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if hyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			hyphen = false
			b.WriteRune(unicode.ToLower(r))
		default:
			hyphen = true
		}
	}

	if b.Len() == 0 {
		return Fallback
	}
	return b.String()
}

// Taken reports whether a candidate slug is already in use.
type Taken func(candidate string) (bool, error)

// Unique returns Make(name), or the first of "<slug>-2", "<slug>-3", ...
// that taken reports as free.
func Unique(name string, taken Taken) (string, error) {
	base := Make(name)
	candidate := base
	for n := 2; ; n++ {
		used, err := taken(candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !used {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}
