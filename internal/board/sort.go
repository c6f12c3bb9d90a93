package board

import (
	"cmp"
	"slices"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"projectboard/internal/domain"
)

type SortKey string

const (
	SortName     SortKey = "name"
	SortProgress SortKey = "progress"
	SortDueDate  SortKey = "dueDate"
)

// Sort returns a new, stably ordered copy of projects.
// name compares titles with the collation rules of lang, progress is
// descending, dueDate is ascending with unparsable dates last.
// Unknown keys keep the input order.
func Sort(projects []domain.Project, key SortKey, lang language.Tag) []domain.Project {
	out := make([]domain.Project, len(projects))
	copy(out, projects)
	switch key {
	case SortName:
		c := collate.New(lang, collate.IgnoreCase)
		slices.SortStableFunc(out, func(a, b domain.Project) int {
			return c.CompareString(a.Title, b.Title)
		})
	case SortProgress:
		slices.SortStableFunc(out, func(a, b domain.Project) int {
			return cmp.Compare(b.Progress, a.Progress)
		})
	case SortDueDate:
		return sortByDueDate(out)
	}
	return out
}

func sortByDueDate(projects []domain.Project) []domain.Project {
	type keyed struct {
		p   domain.Project
		due time.Time
		ok  bool
	}
	items := make([]keyed, len(projects))
	for i, p := range projects {
		due, err := ParseDate(p.DueDate, time.UTC)
		items[i] = keyed{p: p, due: due, ok: err == nil}
	}
	slices.SortStableFunc(items, func(a, b keyed) int {
		switch {
		case a.ok && b.ok:
			return a.due.Compare(b.due)
		case a.ok:
			return -1
		case b.ok:
			return 1
		}
		return 0
	})
	for i := range items {
		projects[i] = items[i].p
	}
	return projects
}
