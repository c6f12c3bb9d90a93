package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"projectboard/internal/board"
	"projectboard/internal/config"
	"projectboard/internal/domain"
	"projectboard/internal/events"
	"projectboard/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Log    *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// eventLog shares the engine clock with the event log.
func (e Engine) eventLog() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ValidationError reports a rejected field on a draft.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TaskDraft is the caller-supplied shape of a task. An empty ID is assigned
// on save; an empty Status means todo.
type TaskDraft struct {
	ID        string            `json:"id,omitempty"`
	Title     string            `json:"title"`
	Status    domain.TaskStatus `json:"status,omitempty"`
	Assignees []string          `json:"assignees,omitempty"`
	DueDate   *string           `json:"due_date,omitempty"`
}

// ProjectDraft is everything a caller may set on a project. Progress and
// timestamps are derived.
type ProjectDraft struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	DueDate     string      `json:"due_date"`
	Priority    int         `json:"priority"`
	Tasks       []TaskDraft `json:"tasks,omitempty"`
	Team        []string    `json:"team,omitempty"`
}

// DraftOf converts a stored project back into an editable draft.
func DraftOf(p domain.Project) ProjectDraft {
	d := ProjectDraft{
		Title:       p.Title,
		Description: p.Description,
		DueDate:     p.DueDate,
		Priority:    p.Priority,
		Team:        append([]string{}, p.Team...),
	}
	for _, t := range p.Tasks {
		d.Tasks = append(d.Tasks, TaskDraft{
			ID:        t.ID,
			Title:     t.Title,
			Status:    t.Status,
			Assignees: append([]string{}, t.Assignees...),
			DueDate:   t.DueDate,
		})
	}
	return d
}

func normalizeNames(field string, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, invalid(field, "names must not be empty")
		}
		if slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (e Engine) validateTask(d TaskDraft) (TaskDraft, error) {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return d, invalid("task.title", "required")
	}
	if d.Status == "" {
		d.Status = domain.TaskTodo
	}
	if !d.Status.Valid() {
		return d, invalid("task.status", "%q is not one of todo, in-progress, completed", d.Status)
	}
	if d.DueDate != nil {
		due := strings.TrimSpace(*d.DueDate)
		if due == "" {
			d.DueDate = nil
		} else {
			if _, err := board.ParseDate(due, time.UTC); err != nil {
				return d, invalid("task.due_date", "%v", err)
			}
			d.DueDate = &due
		}
	}
	names, err := normalizeNames("task.assignees", d.Assignees)
	if err != nil {
		return d, err
	}
	d.Assignees = names
	return d, nil
}

func (e Engine) validateDraft(d ProjectDraft) (ProjectDraft, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.DueDate = strings.TrimSpace(d.DueDate)
	if d.Title == "" {
		return d, invalid("title", "required")
	}
	if d.DueDate == "" {
		return d, invalid("due_date", "required")
	}
	if _, err := board.ParseDate(d.DueDate, time.UTC); err != nil {
		return d, invalid("due_date", "%v", err)
	}
	if d.Priority < 1 || d.Priority > 5 {
		return d, invalid("priority", "must be between 1 and 5, got %d", d.Priority)
	}
	team, err := normalizeNames("team", d.Team)
	if err != nil {
		return d, err
	}
	d.Team = team
	d.Tasks = slices.Clone(d.Tasks)
	seen := map[string]bool{}
	for i := range d.Tasks {
		t, err := e.validateTask(d.Tasks[i])
		if err != nil {
			return d, err
		}
		if t.ID != "" {
			if seen[t.ID] {
				return d, invalid("task.id", "duplicate id %s", t.ID)
			}
			seen[t.ID] = true
		}
		d.Tasks[i] = t
	}
	return d, nil
}

// applyTasks builds the task list for a save. Tasks whose id already exists
// in prev move through board.SetTaskStatus so CompletedAt survives.
func (e Engine) applyTasks(prev []domain.Task, drafts []TaskDraft) []domain.Task {
	now := e.now()
	out := make([]domain.Task, 0, len(drafts))
	for _, d := range drafts {
		base := domain.Task{ID: d.ID, Status: domain.TaskTodo}
		if d.ID != "" {
			if i := slices.IndexFunc(prev, func(t domain.Task) bool { return t.ID == d.ID }); i >= 0 {
				base = prev[i].Clone()
			}
		} else {
			base.ID = uuid.NewString()
		}
		base.Title = d.Title
		base.Assignees = append([]string{}, d.Assignees...)
		base.DueDate = d.DueDate
		out = append(out, board.SetTaskStatus(base, d.Status, now))
	}
	return out
}

func snapshotPayload(p domain.Project) events.EventPayload {
	return events.EventPayload{"project": p}
}

// ListProjects returns every project, newest first.
func (e Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx, nil)
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.Repo.GetProject(ctx, nil, id)
}

// CreateProject validates d, stores the new project and records
// project.created with the saved snapshot.
func (e Engine) CreateProject(ctx context.Context, d ProjectDraft, actorID string) (domain.Project, error) {
	d, err := e.validateDraft(d)
	if err != nil {
		return domain.Project{}, err
	}
	now := e.stamp()
	p := domain.Project{
		ID:          uuid.NewString(),
		Title:       d.Title,
		Description: d.Description,
		DueDate:     d.DueDate,
		Priority:    d.Priority,
		Tasks:       e.applyTasks(nil, d.Tasks),
		Team:        d.Team,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p = board.Recompute(p)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.eventLog().Append(ctx, tx, events.ProjectCreated, p.ID, events.KindProject, p.ID, actorID, snapshotPayload(p)); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.logger().Debug("project created", "project_id", p.ID, "tasks", len(p.Tasks), "actor", actorID)
	return p, nil
}

// mutate loads a project inside a transaction, applies fn, recomputes
// progress, stores the result and records project.updated.
func (e Engine) mutate(ctx context.Context, projectID, actorID string, fn func(*domain.Project) error) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", projectID, err)
	}
	if err := fn(&p); err != nil {
		return domain.Project{}, err
	}
	p = board.Recompute(p)
	p.UpdatedAt = e.stamp()
	if err := e.Repo.ReplaceProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.eventLog().Append(ctx, tx, events.ProjectUpdated, p.ID, events.KindProject, p.ID, actorID, snapshotPayload(p)); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.logger().Debug("project updated", "project_id", p.ID, "progress", p.Progress, "actor", actorID)
	return p, nil
}

// UpdateProject replaces every editable field of the project, including its
// tasks and team.
func (e Engine) UpdateProject(ctx context.Context, id string, d ProjectDraft, actorID string) (domain.Project, error) {
	d, err := e.validateDraft(d)
	if err != nil {
		return domain.Project{}, err
	}
	return e.mutate(ctx, id, actorID, func(p *domain.Project) error {
		p.Title = d.Title
		p.Description = d.Description
		p.DueDate = d.DueDate
		p.Priority = d.Priority
		p.Team = d.Team
		p.Tasks = e.applyTasks(p.Tasks, d.Tasks)
		return nil
	})
}

// SaveProject stores a full snapshot of an existing project.
func (e Engine) SaveProject(ctx context.Context, p domain.Project, actorID string) (domain.Project, error) {
	return e.UpdateProject(ctx, p.ID, DraftOf(p), actorID)
}

func (e Engine) DeleteProject(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProject(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("project %s: %w", id, err)
	}
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.eventLog().Append(ctx, tx, events.ProjectDeleted, id, events.KindProject, id, actorID, events.EventPayload{"title": p.Title}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.logger().Debug("project deleted", "project_id", id, "actor", actorID)
	return nil
}

// AddTask appends a task to the project.
func (e Engine) AddTask(ctx context.Context, projectID string, d TaskDraft, actorID string) (domain.Project, error) {
	d, err := e.validateTask(d)
	if err != nil {
		return domain.Project{}, err
	}
	return e.mutate(ctx, projectID, actorID, func(p *domain.Project) error {
		if d.ID != "" && p.TaskByID(d.ID) >= 0 {
			return invalid("task.id", "duplicate id %s", d.ID)
		}
		p.Tasks = append(p.Tasks, e.applyTasks(nil, []TaskDraft{d})...)
		return nil
	})
}

// TaskPatch changes selected fields of one task. Nil fields are left alone;
// ClearDueDate drops the task's due date.
type TaskPatch struct {
	Title        *string
	Status       *domain.TaskStatus
	Assignees    []string
	SetAssignees bool
	DueDate      *string
	ClearDueDate bool
}

func (e Engine) UpdateTask(ctx context.Context, projectID, taskID string, patch TaskPatch, actorID string) (domain.Project, error) {
	return e.mutate(ctx, projectID, actorID, func(p *domain.Project) error {
		i := p.TaskByID(taskID)
		if i < 0 {
			return fmt.Errorf("task %s: %w", taskID, repo.ErrNotFound)
		}
		d := DraftOf(*p).Tasks[i]
		if patch.Title != nil {
			d.Title = *patch.Title
		}
		if patch.Status != nil {
			d.Status = *patch.Status
		}
		if patch.SetAssignees {
			d.Assignees = patch.Assignees
		}
		if patch.ClearDueDate {
			d.DueDate = nil
		} else if patch.DueDate != nil {
			d.DueDate = patch.DueDate
		}
		d, err := e.validateTask(d)
		if err != nil {
			return err
		}
		p.Tasks[i] = e.applyTasks(p.Tasks, []TaskDraft{d})[0]
		return nil
	})
}

// SetTaskStatus moves one task to status, stamping or clearing CompletedAt.
func (e Engine) SetTaskStatus(ctx context.Context, projectID, taskID string, status domain.TaskStatus, actorID string) (domain.Project, error) {
	return e.UpdateTask(ctx, projectID, taskID, TaskPatch{Status: &status}, actorID)
}

func (e Engine) RemoveTask(ctx context.Context, projectID, taskID, actorID string) (domain.Project, error) {
	return e.mutate(ctx, projectID, actorID, func(p *domain.Project) error {
		i := p.TaskByID(taskID)
		if i < 0 {
			return fmt.Errorf("task %s: %w", taskID, repo.ErrNotFound)
		}
		p.Tasks = slices.Delete(p.Tasks, i, i+1)
		return nil
	})
}

// AddTeamMember adds name to the project's team. Adding an existing member
// is a no-op that still records an update.
func (e Engine) AddTeamMember(ctx context.Context, projectID, name, actorID string) (domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Project{}, invalid("team", "names must not be empty")
	}
	return e.mutate(ctx, projectID, actorID, func(p *domain.Project) error {
		if !p.HasMember(name) {
			p.Team = append(p.Team, name)
		}
		return nil
	})
}

func (e Engine) RemoveTeamMember(ctx context.Context, projectID, name, actorID string) (domain.Project, error) {
	return e.mutate(ctx, projectID, actorID, func(p *domain.Project) error {
		i := slices.Index(p.Team, name)
		if i < 0 {
			return fmt.Errorf("team member %q: %w", name, repo.ErrNotFound)
		}
		p.Team = slices.Delete(p.Team, i, i+1)
		return nil
	})
}

// IsValidation reports whether err was caused by rejected input.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
