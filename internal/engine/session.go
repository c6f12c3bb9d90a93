package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"projectboard/internal/board"
	"projectboard/internal/domain"
	"projectboard/internal/repo"
)

// ErrSaveInFlight is returned when a project already has a save outstanding.
var ErrSaveInFlight = errors.New("save already in flight for project")

// Store is the persistence side of a Session. Engine satisfies it.
type Store interface {
	GetProject(ctx context.Context, id string) (domain.Project, error)
	SaveProject(ctx context.Context, p domain.Project, actorID string) (domain.Project, error)
}

// Session keeps a local copy of projects and writes changes through to the
// store. A change is visible locally as soon as it is applied; the store's
// response replaces it on success and the previous copy is restored on
// failure. At most one save per project is outstanding at a time.
type Session struct {
	store Store
	now   func() time.Time

	// AlwaysReload fetches the stored project before every change instead of
	// trusting the local copy, and drops the copy once the save completes.
	// Long-lived sessions shared with other writers set it.
	AlwaysReload bool

	mu       sync.Mutex
	projects map[string]domain.Project
	inflight map[string]bool
}

func NewSession(store Store, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		store:    store,
		now:      now,
		projects: map[string]domain.Project{},
		inflight: map[string]bool{},
	}
}

// Load replaces the local copies of the given projects. Projects with a save
// in flight keep their pending copy.
func (s *Session) Load(projects []domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range projects {
		if s.inflight[p.ID] {
			continue
		}
		s.projects[p.ID] = p.Clone()
	}
}

// Get returns the local copy of a project.
func (s *Session) Get(id string) (domain.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, false
	}
	return p.Clone(), true
}

func (s *Session) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[id]
}

// SetTaskStatus applies a status change locally and saves the project.
func (s *Session) SetTaskStatus(ctx context.Context, projectID, taskID string, status domain.TaskStatus, actorID string) (domain.Project, error) {
	if !status.Valid() {
		return domain.Project{}, invalid("task.status", "%q is not one of todo, in-progress, completed", status)
	}
	return s.commit(ctx, projectID, actorID, func(p domain.Project) (domain.Project, error) {
		i := p.TaskByID(taskID)
		if i < 0 {
			return p, fmt.Errorf("task %s: %w", taskID, repo.ErrNotFound)
		}
		p.Tasks[i] = board.SetTaskStatus(p.Tasks[i], status, s.now())
		return board.Recompute(p), nil
	})
}

// Save writes a full edited snapshot of an existing project.
func (s *Session) Save(ctx context.Context, p domain.Project, actorID string) (domain.Project, error) {
	return s.commit(ctx, p.ID, actorID, func(domain.Project) (domain.Project, error) {
		return board.Recompute(p), nil
	})
}

func (s *Session) begin(id string) (domain.Project, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] {
		return domain.Project{}, false, ErrSaveInFlight
	}
	s.inflight[id] = true
	p, ok := s.projects[id]
	return p.Clone(), ok, nil
}

func (s *Session) abort(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

func (s *Session) commit(ctx context.Context, id, actorID string, change func(domain.Project) (domain.Project, error)) (domain.Project, error) {
	cur, ok, err := s.begin(id)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok || s.AlwaysReload {
		cur, err = s.store.GetProject(ctx, id)
		if err != nil {
			s.abort(id)
			return domain.Project{}, err
		}
	}
	next, err := change(cur.Clone())
	if err != nil {
		s.abort(id)
		return domain.Project{}, err
	}

	s.mu.Lock()
	prev, hadPrev := s.projects[id]
	s.projects[id] = next.Clone()
	s.mu.Unlock()

	saved, err := s.store.SaveProject(ctx, next, actorID)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
	if err != nil {
		if hadPrev {
			s.projects[id] = prev
		} else {
			delete(s.projects, id)
		}
		return domain.Project{}, err
	}
	if s.AlwaysReload {
		delete(s.projects, id)
		return saved, nil
	}
	s.projects[id] = saved.Clone()
	return saved, nil
}
