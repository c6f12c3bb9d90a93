package board

import "projectboard/internal/domain"

// DefaultPreviewTasks is how many task rows a collapsed project shows.
const DefaultPreviewTasks = 3

// ViewState holds presentation-only flags keyed by project id.
type ViewState struct {
	Expanded map[string]bool `json:"expanded,omitempty"`
}

func (v ViewState) IsExpanded(projectID string) bool {
	return v.Expanded[projectID]
}

// Toggle returns a new ViewState with projectID's expansion flipped.
func (v ViewState) Toggle(projectID string) ViewState {
	next := ViewState{Expanded: make(map[string]bool, len(v.Expanded)+1)}
	for id, on := range v.Expanded {
		if on {
			next.Expanded[id] = true
		}
	}
	if next.Expanded[projectID] {
		delete(next.Expanded, projectID)
	} else {
		next.Expanded[projectID] = true
	}
	return next
}

// VisibleTasks returns the task rows to render and how many are hidden.
func VisibleTasks(p domain.Project, expanded bool, preview int) ([]domain.Task, int) {
	if preview <= 0 {
		preview = DefaultPreviewTasks
	}
	if expanded || len(p.Tasks) <= preview {
		return p.Tasks, 0
	}
	return p.Tasks[:preview], len(p.Tasks) - preview
}
