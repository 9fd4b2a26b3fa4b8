// Package note reads and writes the change-request tag micro-format that
// reviewers append to GitLab comments:
//
//	Fix off-by-one in the pager
//	#domain/edge-case
//
// The tag must be the very last thing in the (trimmed) body. A tag-shaped
// substring anywhere else stays part of the description.
package note

import (
	"regexp"
	"strings"

	"basegraph.app/tally/internal/model"
)

// DefaultSubCategory is written when a category has no sub-category.
const DefaultSubCategory = "other"

var trailingTag = regexp.MustCompile(`(?s)^(.*)#([A-Za-z0-9_-]+)/([A-Za-z0-9_-]+)$`)

// Parsed is the decomposition of one note body.
type Parsed struct {
	Description string
	Category    *string
	SubCategory *string
}

// Parse splits a raw note body into description and optional tag.
// It never fails.
func Parse(raw string) Parsed {
	text := strings.TrimSpace(raw)

	m := trailingTag.FindStringSubmatch(text)
	if m == nil {
		return Parsed{Description: text}
	}

	category, subCategory := m[2], m[3]
	return Parsed{
		Description: strings.TrimSpace(m[1]),
		Category:    &category,
		SubCategory: &subCategory,
	}
}

// Format renders p back into a note body. The two trailing spaces force a
// markdown line break so the tag renders on its own line in GitLab.
func Format(p Parsed) string {
	if p.Category == nil {
		return p.Description
	}

	sub := DefaultSubCategory
	if p.SubCategory != nil && *p.SubCategory != "" {
		sub = *p.SubCategory
	}
	return p.Description + "  \n#" + *p.Category + "/" + sub
}

// FromChangeRequest builds the note body representation of cr.
func FromChangeRequest(cr model.ChangeRequest) Parsed {
	return Parsed{
		Description: cr.Description,
		Category:    cr.Category,
		SubCategory: cr.SubCategory,
	}
}
