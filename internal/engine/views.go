package engine

import (
	"context"
	"time"

	"projectboard/internal/board"
	"projectboard/internal/domain"
)

// DashboardProject is a project as the dashboard lists it: the stored record
// plus the task rows to show and how many are folded away.
type DashboardProject struct {
	domain.Project
	Expanded     bool          `json:"expanded"`
	VisibleTasks []domain.Task `json:"visible_tasks"`
	HiddenTasks  int           `json:"hidden_tasks"`
}

type Dashboard struct {
	GeneratedAt string             `json:"generated_at" format:"date-time"`
	Query       board.Query        `json:"query"`
	Stats       board.Stats        `json:"stats"`
	TeamMembers []string           `json:"team_members"`
	Projects    []DashboardProject `json:"projects"`
}

func (e Engine) timelineOptions() board.TimelineOptions {
	t := e.Config.Timeline
	return board.TimelineOptions{MinWeeks: t.MinWeeks, MaxWeeks: t.MaxWeeks, MarkerSpacingWeeks: t.MarkerSpacingWeeks}
}

func (e Engine) selection(ctx context.Context, q board.Query, now time.Time) ([]domain.Project, []domain.Project, error) {
	all, err := e.Repo.ListProjects(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	return all, board.Apply(all, q, now, e.Config.Language()), nil
}

// Dashboard loads every project, computes totals over the whole collection
// and returns the filtered, sorted selection.
func (e Engine) Dashboard(ctx context.Context, q board.Query, view board.ViewState) (Dashboard, error) {
	now := e.now()
	all, selected, err := e.selection(ctx, q, now)
	if err != nil {
		return Dashboard{}, err
	}
	out := Dashboard{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Query:       q,
		Stats:       board.Aggregate(all),
		TeamMembers: board.TeamMembers(all),
		Projects:    make([]DashboardProject, 0, len(selected)),
	}
	for _, p := range selected {
		expanded := view.IsExpanded(p.ID)
		rows, hidden := board.VisibleTasks(p, expanded, e.Config.Timeline.PreviewTasks)
		out.Projects = append(out.Projects, DashboardProject{
			Project:      p,
			Expanded:     expanded,
			VisibleTasks: rows,
			HiddenTasks:  hidden,
		})
	}
	return out, nil
}

type TimelineProject struct {
	board.ProjectLayout
	Expanded     bool          `json:"expanded"`
	VisibleTasks []domain.Task `json:"visible_tasks"`
	HiddenTasks  int           `json:"hidden_tasks"`
}

type Timeline struct {
	Window   board.Window      `json:"window"`
	Query    board.Query       `json:"query"`
	Projects []TimelineProject `json:"projects"`
}

// Timeline lays the filtered, sorted selection out on the 12 month grid
// starting at the current month.
func (e Engine) Timeline(ctx context.Context, q board.Query, view board.ViewState) (Timeline, error) {
	now := e.now()
	_, selected, err := e.selection(ctx, q, now)
	if err != nil {
		return Timeline{}, err
	}
	w := board.NewWindow(now)
	opts := e.timelineOptions()
	out := Timeline{Window: w, Query: q, Projects: make([]TimelineProject, 0, len(selected))}
	for _, p := range selected {
		expanded := view.IsExpanded(p.ID)
		rows, hidden := board.VisibleTasks(p, expanded, e.Config.Timeline.PreviewTasks)
		out.Projects = append(out.Projects, TimelineProject{
			ProjectLayout: board.Layout(p, w, opts),
			Expanded:      expanded,
			VisibleTasks:  rows,
			HiddenTasks:   hidden,
		})
	}
	return out, nil
}
