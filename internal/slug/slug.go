// Package slug provides URL- and path-safe slugs for experiment and
// artifact names.
// This package is internal and should not be imported by external projects.
package slug

import (
	"strings"
	"unicode"
)

// Make converts s to a lowercase, hyphen-separated slug. Runs of
// non-alphanumeric characters collapse into a single hyphen; leading and
// trailing hyphens are stripped.
func Make(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	return b.String()
}
