package submission

import (
	"fmt"
	"sort"
	"strings"
)

// SortField is a column the dashboard can sort by.
type SortField string

const (
	SortByName      SortField = "name"
	SortByCreatedAt SortField = "created_at"
	SortByAge       SortField = "age"
)

// SortDir is ascending or descending.
type SortDir string

const (
	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// Query filters and orders submissions for display.
type Query struct {
	Search string
	Field  SortField
	Dir    SortDir
}

// DefaultQuery shows newest first.
func DefaultQuery() Query {
	return Query{Field: SortByCreatedAt, Dir: Desc}
}

// ParseQuery builds a query from request parameters. Empty values keep the defaults.
func ParseQuery(search, field, dir string) (Query, error) {
	q := DefaultQuery()
	q.Search = strings.TrimSpace(search)
	if field != "" {
		switch f := SortField(field); f {
		case SortByName, SortByCreatedAt, SortByAge:
			q.Field = f
		default:
			return q, fmt.Errorf("submission: unknown sort field %q", field)
		}
	}
	if dir != "" {
		switch d := SortDir(dir); d {
		case Asc, Desc:
			q.Dir = d
		default:
			return q, fmt.Errorf("submission: unknown sort direction %q", dir)
		}
	}
	return q, nil
}

// Toggle flips the direction when field is already sorted, otherwise sorts
// by field ascending.
func (q Query) Toggle(field SortField) Query {
	if q.Field == field {
		if q.Dir == Asc {
			q.Dir = Desc
		} else {
			q.Dir = Asc
		}
		return q
	}
	q.Field = field
	q.Dir = Asc
	return q
}

// Matches reports whether s matches the search text: name or email
// case-insensitively, phone as typed.
func (q Query) Matches(s Submission) bool {
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	return strings.Contains(strings.ToLower(s.Name), needle) ||
		strings.Contains(strings.ToLower(s.Email), needle) ||
		strings.Contains(s.Phone, q.Search)
}

// Apply returns the matching submissions in order. The input is not modified.
func (q Query) Apply(subs []Submission) []Submission {
	out := make([]Submission, 0, len(subs))
	for _, s := range subs {
		if q.Matches(s) {
			out = append(out, s)
		}
	}

	compare := func(a, b Submission) int {
		switch q.Field {
		case SortByName:
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case SortByAge:
			return a.Age - b.Age
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j])
		if q.Dir == Desc {
			return c > 0
		}
		return c < 0
	})
	return out
}
