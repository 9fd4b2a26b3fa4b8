package common

import (
	"regexp"
	"strings"
)

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	acronymEnd    = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	nonKebabChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Kebab normalizes a label to lowercase-hyphenated form:
// "Edge Case", "edgeCase", "edge_case" and "EDGE-case" all become "edge-case".
// Category and sub-category labels are stored in this form.
func Kebab(s string) string {
	s = strings.TrimSpace(s)
	s = acronymEnd.ReplaceAllString(s, "${1}-${2}")
	s = camelBoundary.ReplaceAllString(s, "${1}-${2}")
	s = nonKebabChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}
