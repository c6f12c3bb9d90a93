package board

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"projectboard/internal/domain"
)

type Deadline string

const (
	DeadlineAll       Deadline = "all"
	DeadlineOverdue   Deadline = "overdue"
	DeadlineThisWeek  Deadline = "this-week"
	DeadlineThisMonth Deadline = "this-month"
)

type Completion string

const (
	CompletionAll        Completion = "all"
	CompletionNotStarted Completion = "not-started"
	CompletionInProgress Completion = "in-progress"
	CompletionCompleted  Completion = "completed"
)

// Filters selects projects. Zero values mean "all".
// Priority 0 matches every priority.
type Filters struct {
	Deadline   Deadline   `json:"deadline"`
	Priority   int        `json:"priority"`
	Completion Completion `json:"completion"`
	TeamMember string     `json:"team_member,omitempty"`
	Search     string     `json:"search,omitempty"`
}

// DefaultFilters is the identity filter.
func DefaultFilters() Filters {
	return Filters{Deadline: DeadlineAll, Completion: CompletionAll}
}

func ParseDeadline(s string) (Deadline, error) {
	switch d := Deadline(strings.TrimSpace(s)); d {
	case "", DeadlineAll:
		return DeadlineAll, nil
	case DeadlineOverdue, DeadlineThisWeek, DeadlineThisMonth:
		return d, nil
	}
	return "", fmt.Errorf("invalid deadline filter %q", s)
}

func ParseCompletion(s string) (Completion, error) {
	switch c := Completion(strings.TrimSpace(s)); c {
	case "", CompletionAll:
		return CompletionAll, nil
	case CompletionNotStarted, CompletionInProgress, CompletionCompleted:
		return c, nil
	}
	return "", fmt.Errorf("invalid completion filter %q", s)
}

// ParsePriority accepts "all" (or empty) and 1..5.
func ParsePriority(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 5 {
		return 0, fmt.Errorf("invalid priority filter %q", s)
	}
	return n, nil
}

// Matches reports whether p passes every predicate in f, evaluated at now.
func Matches(p domain.Project, f Filters, now time.Time) bool {
	return matchDeadline(p, f.Deadline, now) &&
		matchPriority(p, f.Priority) &&
		matchCompletion(p, f.Completion) &&
		matchMember(p, f.TeamMember) &&
		matchSearch(p, f.Search)
}

// Filter keeps the projects that match f, in their original order.
func Filter(projects []domain.Project, f Filters, now time.Time) []domain.Project {
	out := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		if Matches(p, f, now) {
			out = append(out, p)
		}
	}
	return out
}

func matchDeadline(p domain.Project, d Deadline, now time.Time) bool {
	if d == "" || d == DeadlineAll {
		return true
	}
	due, err := ParseDate(p.DueDate, now.Location())
	if err != nil {
		// unparsable due dates never land in a bucket
		return false
	}
	today := Day(now)
	switch d {
	case DeadlineOverdue:
		return due.Before(today)
	case DeadlineThisWeek:
		return !due.Before(today) && !due.After(today.AddDate(0, 0, 7))
	case DeadlineThisMonth:
		return !due.Before(today) && !due.After(AddMonthsClamped(today, 1))
	}
	return true
}

func matchPriority(p domain.Project, priority int) bool {
	return priority == 0 || p.Priority == priority
}

func matchCompletion(p domain.Project, c Completion) bool {
	switch c {
	case CompletionNotStarted:
		return p.Progress == 0
	case CompletionInProgress:
		return p.Progress > 0 && p.Progress < 100
	case CompletionCompleted:
		return p.Progress == 100
	}
	return true
}

func matchMember(p domain.Project, name string) bool {
	return name == "" || p.HasMember(name)
}

func matchSearch(p domain.Project, q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Title), q) ||
		strings.Contains(strings.ToLower(p.Description), q)
}

// TeamMembers lists every distinct team member across projects, sorted.
func TeamMembers(projects []domain.Project) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, p := range projects {
		for _, m := range p.Team {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out
}
