package board

import (
	"time"

	"projectboard/internal/domain"
)

// Progress returns the share of completed tasks as a whole percentage.
// An empty task list is 0% done.
func Progress(tasks []domain.Task) int {
	completed := 0
	for _, t := range tasks {
		if t.Status == domain.TaskCompleted {
			completed++
		}
	}
	return Percent(completed, len(tasks))
}

// Percent returns round-half-up(100*part/total), or 0 when total is 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}

// SetTaskStatus returns a copy of t moved to status. Entering completed
// stamps CompletedAt with now; any other status clears it.
func SetTaskStatus(t domain.Task, status domain.TaskStatus, now time.Time) domain.Task {
	out := t.Clone()
	prev := out.Status
	out.Status = status
	if status != domain.TaskCompleted {
		out.CompletedAt = nil
		return out
	}
	if prev != domain.TaskCompleted || out.CompletedAt == nil {
		ts := now.UTC().Format(time.RFC3339)
		out.CompletedAt = &ts
	}
	return out
}

// Recompute returns a copy of p whose Progress matches its task list.
func Recompute(p domain.Project) domain.Project {
	out := p.Clone()
	out.Progress = Progress(out.Tasks)
	return out
}
