// Package query filters an owner's entries by free text and category.
//
// Filtering is a pure function of its inputs: no ranking, no pagination,
// no stemming. The zero Criteria keeps everything.
package query

import (
	"strings"

	"github.com/sakif/knowledge-library/internal/model"
)

// Criteria holds the optional predicates. Empty fields are ignored.
type Criteria struct {
	Search     string
	CategoryID string
}

// IsZero reports whether c filters nothing out. A whitespace-only search is
// still a search.
func (c Criteria) IsZero() bool {
	return c.Search == "" && c.CategoryID == ""
}

// Filter returns the entries that satisfy every given predicate, preserving
// input order. The input slice is not modified. The search term is matched
// exactly as given apart from case: surrounding spaces are part of it.
func Filter(entries []model.Entry, c Criteria) []model.Entry {
	term := strings.ToLower(c.Search)

	out := make([]model.Entry, 0, len(entries))
	for i := range entries {
		if matchesText(&entries[i], term) && matchesCategory(&entries[i], c.CategoryID) {
			out = append(out, entries[i])
		}
	}
	return out
}

// Match reports whether a single entry satisfies c.
func Match(e *model.Entry, c Criteria) bool {
	return matchesText(e, strings.ToLower(c.Search)) && matchesCategory(e, c.CategoryID)
}

// term is already lower-cased.
func matchesText(e *model.Entry, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Title), term) ||
		strings.Contains(strings.ToLower(e.Content), term)
}

func matchesCategory(e *model.Entry, categoryID string) bool {
	return categoryID == "" || e.HasCategory(categoryID)
}
