package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projectboard/internal/app"
	"projectboard/internal/board"
	"projectboard/internal/domain"
	"projectboard/internal/engine"
)

// queryFlags binds the dashboard and timeline selection flags.
type queryFlags struct {
	params   board.QueryParams
	expanded []string
}

func (f *queryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.params.Deadline, "deadline", "all", "all, overdue, this-week or this-month")
	cmd.Flags().StringVar(&f.params.Priority, "priority", "all", "all or 1-5")
	cmd.Flags().StringVar(&f.params.Completion, "completion", "all", "all, not-started, in-progress or completed")
	cmd.Flags().StringVar(&f.params.TeamMember, "member", "", "only projects with this team member")
	cmd.Flags().StringVar(&f.params.Search, "search", "", "case-insensitive match on title or description")
	cmd.Flags().StringVar(&f.params.Sort, "sort", "", "name, progress or dueDate")
	cmd.Flags().StringArrayVar(&f.expanded, "expand", nil, "project id whose full task list is shown (repeatable)")
}

func (f *queryFlags) parse() (board.Query, board.ViewState, error) {
	q, err := board.ParseQuery(f.params)
	if err != nil {
		return board.Query{}, board.ViewState{}, err
	}
	view := board.ViewState{}
	for _, id := range f.expanded {
		if !view.IsExpanded(id) {
			view = view.Toggle(id)
		}
	}
	return q, view, nil
}

func dashboardCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show totals and the filtered, sorted project list",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, view, err := flags.parse()
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				dash, err := ws.Engine.Dashboard(ctx, q, view)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(dash)
				}
				renderDashboard(os.Stdout, dash)
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func timelineCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show the 12 month timeline",
		Long:  "Each month has four week cells. Filled cells are the completed share of a project's span, shaded cells the rest up to today, light cells the remaining plan. Diamonds mark tasks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, view, err := flags.parse()
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				tl, err := ws.Engine.Timeline(ctx, q, view)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tl)
				}
				renderTimeline(os.Stdout, tl)
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func progressBar(pct, width int) string {
	filled := pct * width / 100
	return fmt.Sprintf("%s%s %3d%%", strings.Repeat("█", filled), strings.Repeat("░", width-filled), pct)
}

var statusMark = map[domain.TaskStatus]string{
	domain.TaskTodo:       "[ ]",
	domain.TaskInProgress: "[~]",
	domain.TaskCompleted:  "[x]",
}

func writeTasks(w io.Writer, tasks []domain.Task, hidden int) {
	for _, t := range tasks {
		line := fmt.Sprintf("  %s %s", statusMark[t.Status], t.Title)
		if len(t.Assignees) > 0 {
			line += " (" + strings.Join(t.Assignees, ", ") + ")"
		}
		if t.DueDate != nil {
			line += " due " + *t.DueDate
		}
		fmt.Fprintf(w, "%s  #%s\n", line, t.ID)
	}
	if hidden > 0 {
		fmt.Fprintf(w, "  ... %d more\n", hidden)
	}
}

func renderDashboard(w io.Writer, dash engine.Dashboard) {
	s := dash.Stats
	st := table.NewWriter()
	st.SetOutputMirror(w)
	st.AppendHeader(table.Row{"Projects", "Completed", "In progress", "Tasks", "Done", "Doing", "Todo", "Team", "Overall"})
	st.AppendRow(table.Row{s.TotalProjects, s.CompletedProjects, s.InProgressProjects, s.TotalTasks, s.CompletedTasks, s.InProgressTasks, s.TodoTasks, s.TeamMembers, fmt.Sprintf("%d%%", s.OverallProgress)})
	st.Render()

	if len(dash.Projects) == 0 {
		fmt.Fprintln(w, "No projects match the current filters.")
		return
	}
	for _, p := range dash.Projects {
		fmt.Fprintf(w, "\n%s  %s\n", text.Bold.Sprint(p.Title), p.ID)
		fmt.Fprintf(w, "Due %s  Priority %d  %s\n", p.DueDate, p.Priority, progressBar(p.Progress, 20))
		if len(p.Team) > 0 {
			fmt.Fprintf(w, "Team: %s\n", strings.Join(p.Team, ", "))
		}
		writeTasks(w, p.VisibleTasks, p.HiddenTasks)
	}
}

var cellGlyph = map[board.CellState]rune{
	board.CellNone:       '·',
	board.CellCompleted:  '█',
	board.CellInProgress: '▓',
	board.CellPlanned:    '░',
}

const markerGlyph = '◆'

// monthCells renders one layout as twelve 4-character month blocks.
func monthCells(l board.ProjectLayout) []string {
	out := make([]string, board.WindowMonths)
	for m := range out {
		week := make([]rune, board.WeeksPerMonth)
		for i := range week {
			week[i] = ' '
			idx := m*board.WeeksPerMonth + i
			if idx < len(l.Cells) {
				week[i] = cellGlyph[l.Cells[idx]]
			}
		}
		out[m] = string(week)
	}
	for _, mk := range l.Markers {
		if mk.Cell < 0 || mk.Cell >= board.GridCells {
			continue
		}
		block := []rune(out[mk.Month])
		block[mk.Week] = markerGlyph
		out[mk.Month] = string(block)
	}
	return out
}

func renderTimeline(w io.Writer, tl engine.Timeline) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	header := table.Row{"Project", "Due", "%"}
	for _, m := range tl.Window.Months {
		header = append(header, m.Label)
	}
	tw.AppendHeader(header)
	for _, p := range tl.Projects {
		row := table.Row{p.Title, p.Due, p.Progress}
		if p.Invalid {
			row[1] = p.Due + " (invalid)"
		}
		for _, block := range monthCells(p.ProjectLayout) {
			row = append(row, block)
		}
		tw.AppendRow(row)
		if p.Expanded {
			for _, mk := range p.Markers {
				tw.AppendRow(table.Row{"  " + statusMark[mk.Status] + " " + mk.Title, "", "", tl.Window.Months[mk.Month].Label + fmt.Sprintf(" w%d", mk.Week+1)})
			}
		}
	}
	tw.Render()
	fmt.Fprintf(w, "%c completed  %c in progress  %c planned  %c task\n",
		cellGlyph[board.CellCompleted], cellGlyph[board.CellInProgress], cellGlyph[board.CellPlanned], markerGlyph)
}
