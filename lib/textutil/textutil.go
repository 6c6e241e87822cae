// Package textutil normalizes free-form names so that values typed in
// config files match the spellings the dashboards render.
package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases a person's name and strips whitespace and
// the punctuation that varies between "Lee, Bob" and "Bob Lee".
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, ".", "")
	name = strings.ReplaceAll(name, ",", "")
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(name), "")
}

// MatchName reports whether name matches any of the already-normalized
// matchers.
func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
