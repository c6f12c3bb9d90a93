package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"projectboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// on returns tx when set, otherwise the pool. Reads issued during a write
// must go through the same tx.
func (r Repo) on(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

const projectColumns = `id,title,COALESCE(description,''),due_date,priority,progress,created_at,updated_at`

// ListProjects returns every project, newest first, with tasks and team loaded.
func (r Repo) ListProjects(ctx context.Context, tx *sql.Tx) ([]domain.Project, error) {
	return r.loadProjects(ctx, r.on(tx), "")
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	res, err := r.loadProjects(ctx, r.on(tx), id)
	if err != nil {
		return domain.Project{}, err
	}
	if len(res) == 0 {
		return domain.Project{}, ErrNotFound
	}
	return res[0], nil
}

func (r Repo) loadProjects(ctx context.Context, q querier, id string) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if id != "" {
		query += ` WHERE id=?`
		args = append(args, id)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	res := []domain.Project{}
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.DueDate, &p.Priority, &p.Progress, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		p.Tasks = []domain.Task{}
		p.Team = []string{}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(res) == 0 {
		return res, nil
	}

	byID := make(map[string]*domain.Project, len(res))
	for i := range res {
		byID[res[i].ID] = &res[i]
	}
	if err := loadTasks(ctx, q, id, byID); err != nil {
		return nil, err
	}
	if err := loadTeam(ctx, q, id, byID); err != nil {
		return nil, err
	}
	return res, nil
}

func projectScope(id string) (string, []any) {
	if id == "" {
		return "", nil
	}
	return " WHERE project_id=?", []any{id}
}

func loadTasks(ctx context.Context, q querier, id string, byID map[string]*domain.Project) error {
	where, args := projectScope(id)
	rows, err := q.QueryContext(ctx, `SELECT project_id,id,title,status,due_date,completed_at FROM tasks`+where+` ORDER BY project_id, position`, args...)
	if err != nil {
		return err
	}
	type taskRef struct{ project, task string }
	index := map[taskRef]int{}
	for rows.Next() {
		var (
			projectID   string
			t           domain.Task
			dueDate     sql.NullString
			completedAt sql.NullString
		)
		if err := rows.Scan(&projectID, &t.ID, &t.Title, &t.Status, &dueDate, &completedAt); err != nil {
			rows.Close()
			return err
		}
		if dueDate.Valid {
			t.DueDate = &dueDate.String
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.String
		}
		t.Assignees = []string{}
		p, ok := byID[projectID]
		if !ok {
			continue
		}
		p.Tasks = append(p.Tasks, t)
		index[taskRef{projectID, t.ID}] = len(p.Tasks) - 1
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	where, args = projectScope(id)
	rows, err = q.QueryContext(ctx, `SELECT project_id,task_id,name FROM task_assignees`+where+` ORDER BY project_id, task_id, position`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var projectID, taskID, name string
		if err := rows.Scan(&projectID, &taskID, &name); err != nil {
			return err
		}
		pos, ok := index[taskRef{projectID, taskID}]
		if !ok {
			continue
		}
		p := byID[projectID]
		p.Tasks[pos].Assignees = append(p.Tasks[pos].Assignees, name)
	}
	return rows.Err()
}

func loadTeam(ctx context.Context, q querier, id string, byID map[string]*domain.Project) error {
	where, args := projectScope(id)
	rows, err := q.QueryContext(ctx, `SELECT project_id,name FROM team_members`+where+` ORDER BY project_id, position`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var projectID, name string
		if err := rows.Scan(&projectID, &name); err != nil {
			return err
		}
		if p, ok := byID[projectID]; ok {
			p.Team = append(p.Team, name)
		}
	}
	return rows.Err()
}

// InsertProject writes a new project row together with its tasks and team.
func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	q := r.on(tx)
	_, err := q.ExecContext(ctx, `INSERT INTO projects(id,title,description,due_date,priority,progress,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, nullable(p.Description), p.DueDate, p.Priority, p.Progress, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return insertChildren(ctx, q, p)
}

// ReplaceProject overwrites the stored project with p. Tasks and team rows
// are deleted and re-inserted so their order follows p.
func (r Repo) ReplaceProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	q := r.on(tx)
	res, err := q.ExecContext(ctx, `UPDATE projects SET title=?,description=?,due_date=?,priority=?,progress=?,updated_at=? WHERE id=?`,
		p.Title, nullable(p.Description), p.DueDate, p.Priority, p.Progress, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, stmt := range []string{
		`DELETE FROM task_assignees WHERE project_id=?`,
		`DELETE FROM tasks WHERE project_id=?`,
		`DELETE FROM team_members WHERE project_id=?`,
	} {
		if _, err := q.ExecContext(ctx, stmt, p.ID); err != nil {
			return err
		}
	}
	return insertChildren(ctx, q, p)
}

func insertChildren(ctx context.Context, q querier, p domain.Project) error {
	for i, t := range p.Tasks {
		_, err := q.ExecContext(ctx, `INSERT INTO tasks(project_id,id,position,title,status,due_date,completed_at) VALUES (?,?,?,?,?,?,?)`,
			p.ID, t.ID, i, t.Title, string(t.Status), nullableStringPtr(t.DueDate), nullableStringPtr(t.CompletedAt))
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
		for j, name := range t.Assignees {
			if _, err := q.ExecContext(ctx, `INSERT INTO task_assignees(project_id,task_id,position,name) VALUES (?,?,?,?)`, p.ID, t.ID, j, name); err != nil {
				return fmt.Errorf("insert assignee: %w", err)
			}
		}
	}
	for i, name := range p.Team {
		if _, err := q.ExecContext(ctx, `INSERT INTO team_members(project_id,position,name) VALUES (?,?,?)`, p.ID, i, name); err != nil {
			return fmt.Errorf("insert team member %q: %w", name, err)
		}
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountProjects is used by health checks and the CLI summary line.
func (r Repo) CountProjects(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&n)
	return n, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// EventFilter narrows event queries. Zero values match everything.
type EventFilter struct {
	ProjectID  string
	Type       string
	EntityKind string
	EntityID   string
}

func (f EventFilter) clauses() ([]string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	return clauses, args
}

// LatestEvents returns events newest first. A positive cursor restricts the
// page to ids below it.
func (r Repo) LatestEvents(ctx context.Context, limit int, cursor int64, f EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses, args := f.clauses()
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := `SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	return r.queryEvents(ctx, query, append(args, limit)...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, f EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses, args := f.clauses()
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := `SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id ASC LIMIT ?`
	return r.queryEvents(ctx, query, append(args, limit)...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var projectID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.ProjectID = projectID.String
		e.EntityID = entityID.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, optionally for one project.
func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
