package board

import (
	"fmt"
	"strings"
)

// ParseSortKey accepts name, progress and dueDate. Empty keeps stored order.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.TrimSpace(s)); k {
	case "", SortName, SortProgress, SortDueDate:
		return k, nil
	}
	return "", fmt.Errorf("invalid sort key %q", s)
}

// QueryParams is the raw string form of a Query as it arrives from a URL or
// command line flags.
type QueryParams struct {
	Deadline   string
	Priority   string
	Completion string
	TeamMember string
	Search     string
	Sort       string
}

func ParseQuery(in QueryParams) (Query, error) {
	var q Query
	var err error
	if q.Filters.Deadline, err = ParseDeadline(in.Deadline); err != nil {
		return Query{}, err
	}
	if q.Filters.Priority, err = ParsePriority(in.Priority); err != nil {
		return Query{}, err
	}
	if q.Filters.Completion, err = ParseCompletion(in.Completion); err != nil {
		return Query{}, err
	}
	if q.Sort, err = ParseSortKey(in.Sort); err != nil {
		return Query{}, err
	}
	q.Filters.TeamMember = strings.TrimSpace(in.TeamMember)
	q.Filters.Search = strings.TrimSpace(in.Search)
	return q, nil
}
