package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectboard/internal/domain"
	"projectboard/internal/engine"
	"projectboard/internal/repo"
)

// fakeStore holds projects in memory. When gate is set, SaveProject signals
// on started and waits for a value on gate before answering.
type fakeStore struct {
	mu       sync.Mutex
	projects map[string]domain.Project
	gets     int
	saveErr  error
	started  chan struct{}
	gate     chan struct{}
}

func newFakeStore(projects ...domain.Project) *fakeStore {
	s := &fakeStore{projects: map[string]domain.Project{}}
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	return s
}

func (s *fakeStore) GetProject(_ context.Context, id string) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, repo.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *fakeStore) SaveProject(_ context.Context, p domain.Project, _ string) (domain.Project, error) {
	if s.gate != nil {
		s.started <- struct{}{}
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return domain.Project{}, s.saveErr
	}
	p.UpdatedAt = "saved"
	s.projects[p.ID] = p.Clone()
	return p, nil
}

func sessionProject() domain.Project {
	return domain.Project{
		ID:       "p1",
		Title:    "Mobile App",
		DueDate:  "2024-08-01",
		Priority: 1,
		Tasks: []domain.Task{
			{ID: "a", Title: "Login", Status: domain.TaskTodo, Assignees: []string{}},
			{ID: "b", Title: "Push", Status: domain.TaskTodo, Assignees: []string{}},
		},
		Team: []string{},
	}
}

var sessionNow = func() time.Time { return time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC) }

func TestSessionLoadsLazilyAndKeepsSavedCopy(t *testing.T) {
	store := newFakeStore(sessionProject())
	s := engine.NewSession(store, sessionNow)

	p, err := s.SetTaskStatus(context.Background(), "p1", "a", domain.TaskCompleted, "tester")
	require.NoError(t, err)
	assert.Equal(t, 50, p.Progress)
	assert.Equal(t, "saved", p.UpdatedAt)
	assert.Equal(t, 1, store.gets)

	local, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, p, local)

	_, err = s.SetTaskStatus(context.Background(), "p1", "b", domain.TaskCompleted, "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, store.gets, "cached copy should be reused")

	s.AlwaysReload = true
	_, err = s.SetTaskStatus(context.Background(), "p1", "b", domain.TaskTodo, "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, store.gets)
}

func TestSessionOptimisticUpdateAndSingleFlight(t *testing.T) {
	store := newFakeStore(sessionProject())
	store.started = make(chan struct{})
	store.gate = make(chan struct{})
	s := engine.NewSession(store, sessionNow)
	s.Load([]domain.Project{sessionProject()})

	done := make(chan error, 1)
	go func() {
		_, err := s.SetTaskStatus(context.Background(), "p1", "a", domain.TaskCompleted, "tester")
		done <- err
	}()
	<-store.started

	assert.True(t, s.InFlight("p1"))
	pending, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, domain.TaskCompleted, pending.Tasks[0].Status)
	assert.Equal(t, 50, pending.Progress)

	_, err := s.SetTaskStatus(context.Background(), "p1", "b", domain.TaskCompleted, "tester")
	assert.ErrorIs(t, err, engine.ErrSaveInFlight)

	s.Load([]domain.Project{sessionProject()})
	pending, _ = s.Get("p1")
	assert.Equal(t, domain.TaskCompleted, pending.Tasks[0].Status, "load must not clobber a pending save")

	store.gate <- struct{}{}
	require.NoError(t, <-done)
	assert.False(t, s.InFlight("p1"))
}

func TestSessionRestoresOnFailure(t *testing.T) {
	store := newFakeStore(sessionProject())
	store.saveErr = errors.New("disk full")
	s := engine.NewSession(store, sessionNow)
	s.Load([]domain.Project{sessionProject()})

	_, err := s.SetTaskStatus(context.Background(), "p1", "a", domain.TaskCompleted, "tester")
	require.Error(t, err)
	assert.False(t, s.InFlight("p1"))

	local, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, sessionProject(), local)

	fresh := engine.NewSession(store, sessionNow)
	_, err = fresh.SetTaskStatus(context.Background(), "p1", "a", domain.TaskCompleted, "tester")
	require.Error(t, err)
	_, ok = fresh.Get("p1")
	assert.False(t, ok, "failed first save leaves nothing cached")
}

func TestSessionRejectsBadInput(t *testing.T) {
	store := newFakeStore(sessionProject())
	s := engine.NewSession(store, sessionNow)

	_, err := s.SetTaskStatus(context.Background(), "p1", "a", "done", "tester")
	assert.True(t, engine.IsValidation(err))

	_, err = s.SetTaskStatus(context.Background(), "p1", "zzz", domain.TaskCompleted, "tester")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.False(t, s.InFlight("p1"))

	_, err = s.SetTaskStatus(context.Background(), "nope", "a", domain.TaskCompleted, "tester")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestSessionSaveRecomputesProgress(t *testing.T) {
	store := newFakeStore(sessionProject())
	s := engine.NewSession(store, sessionNow)
	edited := sessionProject()
	edited.Tasks[0].Status = domain.TaskCompleted
	edited.Tasks[1].Status = domain.TaskCompleted
	edited.Progress = 3

	saved, err := s.Save(context.Background(), edited, "tester")
	require.NoError(t, err)
	assert.Equal(t, 100, saved.Progress)
}

func TestSessionOverEngine(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, sampleDraft(), "tester")
	require.NoError(t, err)

	s := engine.NewSession(env.Engine, env.Engine.Now)
	s.AlwaysReload = true
	got, err := s.SetTaskStatus(env.Ctx, p.ID, p.Tasks[1].ID, domain.TaskCompleted, "tester")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)

	stored, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestSessionReloadModeKeepsNoCopies(t *testing.T) {
	store := newFakeStore(sessionProject())
	store.started = make(chan struct{})
	store.gate = make(chan struct{})
	s := engine.NewSession(store, sessionNow)
	s.AlwaysReload = true

	done := make(chan error, 1)
	go func() {
		_, err := s.SetTaskStatus(context.Background(), "p1", "a", domain.TaskCompleted, "tester")
		done <- err
	}()
	<-store.started
	pending, ok := s.Get("p1")
	require.True(t, ok, "pending change is visible while the save runs")
	assert.Equal(t, 50, pending.Progress)

	store.gate <- struct{}{}
	require.NoError(t, <-done)
	_, ok = s.Get("p1")
	assert.False(t, ok)
	assert.Equal(t, 1, store.gets)
}

func TestSessionReloadModeForgetsDeletedProjects(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, sampleDraft(), "tester")
	require.NoError(t, err)

	s := engine.NewSession(env.Engine, env.Engine.Now)
	s.AlwaysReload = true
	_, err = s.SetTaskStatus(env.Ctx, p.ID, p.Tasks[1].ID, domain.TaskCompleted, "tester")
	require.NoError(t, err)
	_, ok := s.Get(p.ID)
	assert.False(t, ok)

	require.NoError(t, env.Engine.DeleteProject(env.Ctx, p.ID, "tester"))
	_, err = s.SetTaskStatus(env.Ctx, p.ID, p.Tasks[1].ID, domain.TaskTodo, "tester")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, ok = s.Get(p.ID)
	assert.False(t, ok)
	assert.False(t, s.InFlight(p.ID))
}
