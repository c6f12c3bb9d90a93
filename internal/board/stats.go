package board

import (
	"time"

	"golang.org/x/text/language"

	"projectboard/internal/domain"
)

type Stats struct {
	TotalProjects      int `json:"total_projects"`
	CompletedProjects  int `json:"completed_projects"`
	InProgressProjects int `json:"in_progress_projects"`
	TotalTasks         int `json:"total_tasks"`
	CompletedTasks     int `json:"completed_tasks"`
	InProgressTasks    int `json:"in_progress_tasks"`
	TodoTasks          int `json:"todo_tasks"`
	TeamMembers        int `json:"team_members"`
	OverallProgress    int `json:"overall_progress"`
}

// Aggregate computes dashboard totals over the whole collection.
// Project buckets use the stored Progress field.
func Aggregate(projects []domain.Project) Stats {
	var s Stats
	members := map[string]struct{}{}
	s.TotalProjects = len(projects)
	for _, p := range projects {
		switch {
		case p.Progress == 100:
			s.CompletedProjects++
		case p.Progress > 0 && p.Progress < 100:
			s.InProgressProjects++
		}
		for _, t := range p.Tasks {
			s.TotalTasks++
			switch t.Status {
			case domain.TaskCompleted:
				s.CompletedTasks++
			case domain.TaskInProgress:
				s.InProgressTasks++
			}
		}
		for _, m := range p.Team {
			members[m] = struct{}{}
		}
	}
	s.TodoTasks = s.TotalTasks - s.CompletedTasks - s.InProgressTasks
	s.TeamMembers = len(members)
	s.OverallProgress = Percent(s.CompletedTasks, s.TotalTasks)
	return s
}

// Query is the dashboard's selection state: which projects, in what order.
type Query struct {
	Filters Filters `json:"filters"`
	Sort    SortKey `json:"sort,omitempty"`
}

// Apply filters then sorts.
func Apply(projects []domain.Project, q Query, now time.Time, lang language.Tag) []domain.Project {
	return Sort(Filter(projects, q.Filters, now), q.Sort, lang)
}
