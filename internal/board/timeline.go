package board

import (
	"time"

	"projectboard/internal/domain"
)

const (
	WindowMonths  = 12
	WeeksPerMonth = 4
	GridCells     = WindowMonths * WeeksPerMonth
)

type CellState string

const (
	CellNone       CellState = "none"
	CellCompleted  CellState = "completed"
	CellInProgress CellState = "in-progress"
	CellPlanned    CellState = "planned"
)

// TimelineOptions tune project bar length and marker spacing.
type TimelineOptions struct {
	MinWeeks           int `json:"min_weeks"`
	MaxWeeks           int `json:"max_weeks"`
	MarkerSpacingWeeks int `json:"marker_spacing_weeks"`
}

func DefaultTimelineOptions() TimelineOptions {
	return TimelineOptions{MinWeeks: 12, MaxWeeks: 48, MarkerSpacingWeeks: 2}
}

func (o TimelineOptions) normalized() TimelineOptions {
	def := DefaultTimelineOptions()
	if o.MinWeeks <= 0 {
		o.MinWeeks = def.MinWeeks
	}
	if o.MaxWeeks <= 0 {
		o.MaxWeeks = def.MaxWeeks
	}
	if o.MaxWeeks < o.MinWeeks {
		o.MaxWeeks = o.MinWeeks
	}
	if o.MarkerSpacingWeeks <= 0 {
		o.MarkerSpacingWeeks = def.MarkerSpacingWeeks
	}
	return o
}

type Month struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	Label string    `json:"label"`
}

// Window is the 12-month visible range starting at the month of Today.
type Window struct {
	Today  time.Time `json:"today"`
	Months []Month   `json:"months"`
}

func NewWindow(now time.Time) Window {
	today := Day(now)
	w := Window{Today: today, Months: make([]Month, WindowMonths)}
	for i := range w.Months {
		start := time.Date(today.Year(), today.Month()+time.Month(i), 1, 0, 0, 0, 0, today.Location())
		w.Months[i] = Month{Index: i, Start: start, Label: start.Format("Jan 06")}
	}
	return w
}

// CellDate is the first day of grid cell idx: month start + 7 days per week.
func (w Window) CellDate(idx int) time.Time {
	return w.Months[idx/WeeksPerMonth].Start.AddDate(0, 0, 7*(idx%WeeksPerMonth))
}

// CellOf locates the cell holding date. Days 29-31 fall into week 4.
func (w Window) CellOf(date time.Time) (int, bool) {
	first := w.Months[0].Start
	offset := (date.Year()*12 + int(date.Month())) - (first.Year()*12 + int(first.Month()))
	if offset < 0 || offset >= WindowMonths {
		return 0, false
	}
	week := (date.Day() - 1) / 7
	if week >= WeeksPerMonth {
		week = WeeksPerMonth - 1
	}
	return offset*WeeksPerMonth + week, true
}

type Marker struct {
	TaskID      string            `json:"task_id"`
	Title       string            `json:"title"`
	Status      domain.TaskStatus `json:"status"`
	Assignees   []string          `json:"assignees"`
	Cell        int               `json:"cell"`
	Month       int               `json:"month"`
	Week        int               `json:"week"`
	FromDueDate bool              `json:"from_due_date"`
}

// ProjectLayout places one project on the grid. Invalid is set when the
// due date cannot be parsed; such a layout has no classified cells.
type ProjectLayout struct {
	ProjectID     string      `json:"project_id"`
	Title         string      `json:"title"`
	Progress      int         `json:"progress"`
	Start         string      `json:"start,omitempty"`
	Due           string      `json:"due"`
	DurationWeeks int         `json:"duration_weeks"`
	ProgressWeeks int         `json:"progress_weeks"`
	Cells         []CellState `json:"cells"`
	Markers       []Marker    `json:"markers"`
	Invalid       bool        `json:"invalid,omitempty"`
}

// Layout classifies every grid cell for p and places its task markers.
func Layout(p domain.Project, w Window, opts TimelineOptions) ProjectLayout {
	opts = opts.normalized()
	out := ProjectLayout{
		ProjectID: p.ID,
		Title:     p.Title,
		Progress:  p.Progress,
		Due:       p.DueDate,
		Cells:     make([]CellState, GridCells),
		Markers:   []Marker{},
	}
	for i := range out.Cells {
		out.Cells[i] = CellNone
	}
	due, err := ParseDate(p.DueDate, w.Today.Location())
	if err != nil {
		out.Invalid = true
		return out
	}

	weeks := ceilDiv(daysBetween(w.Today, due), 7)
	if weeks < opts.MinWeeks {
		weeks = opts.MinWeeks
	}
	if weeks > opts.MaxWeeks {
		weeks = opts.MaxWeeks
	}
	start := due.AddDate(0, 0, -7*weeks)
	progress := min(max(p.Progress, 0), 100)
	progressWeeks := progress * weeks / 100

	out.Start = FormatDate(start)
	out.DurationWeeks = weeks
	out.ProgressWeeks = progressWeeks

	firstCell, lastCell := -1, -1
	for idx := 0; idx < GridCells; idx++ {
		cell := w.CellDate(idx)
		if cell.Before(start) || cell.After(due) {
			continue
		}
		if firstCell < 0 {
			firstCell = idx
		}
		lastCell = idx
		weeksFromStart := daysBetween(start, cell) / 7
		switch {
		case weeksFromStart < progressWeeks:
			out.Cells[idx] = CellCompleted
		case !cell.After(w.Today):
			out.Cells[idx] = CellInProgress
		default:
			out.Cells[idx] = CellPlanned
		}
	}
	// Week of the bar start counted from the window start; negative when the
	// bar starts before the window.
	startWeek := ceilDiv(daysBetween(w.Months[0].Start, start), 7)
	bar := span{first: firstCell, last: lastCell}

	for i, t := range p.Tasks {
		idx, fromDue, ok := markerCell(w, t, startWeek+opts.MarkerSpacingWeeks*i, bar)
		if !ok {
			continue
		}
		out.Markers = append(out.Markers, Marker{
			TaskID:      t.ID,
			Title:       t.Title,
			Status:      t.Status,
			Assignees:   append([]string{}, t.Assignees...),
			Cell:        idx,
			Month:       idx / WeeksPerMonth,
			Week:        idx % WeeksPerMonth,
			FromDueDate: fromDue,
		})
	}
	return out
}

// LayoutAll lays out each project in order.
func LayoutAll(projects []domain.Project, w Window, opts TimelineOptions) []ProjectLayout {
	out := make([]ProjectLayout, 0, len(projects))
	for _, p := range projects {
		out = append(out, Layout(p, w, opts))
	}
	return out
}

// span is the range of grid cells a bar covers; first is -1 when the bar
// has no cell on the grid.
type span struct {
	first, last int
}

// markerCell prefers the task's own due date and falls back to the spacing
// heuristic, which only places markers on cells the bar covers.
func markerCell(w Window, t domain.Task, heuristic int, bar span) (int, bool, bool) {
	if t.DueDate != nil {
		if due, err := ParseDate(*t.DueDate, w.Today.Location()); err == nil {
			idx, ok := w.CellOf(due)
			return idx, true, ok
		}
	}
	if bar.first < 0 || heuristic < 0 || heuristic >= GridCells || heuristic > bar.last {
		return 0, false, false
	}
	return heuristic, false, true
}
