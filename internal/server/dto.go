package server

import (
	"encoding/json"

	"projectboard/internal/board"
	"projectboard/internal/domain"
	"projectboard/internal/engine"
)

// Request payloads

type TaskRequest struct {
	ID        string   `json:"id,omitempty"`
	Title     string   `json:"title" minLength:"1"`
	Status    string   `json:"status,omitempty" enum:"todo,in-progress,completed"`
	Assignees []string `json:"assignees,omitempty"`
	DueDate   *string  `json:"due_date,omitempty" example:"2024-09-01"`
}

type ProjectRequest struct {
	Title       string        `json:"title" minLength:"1"`
	Description string        `json:"description,omitempty"`
	DueDate     string        `json:"due_date" example:"2024-09-30"`
	Priority    int           `json:"priority" minimum:"1" maximum:"5"`
	Tasks       []TaskRequest `json:"tasks,omitempty"`
	Team        []string      `json:"team,omitempty"`
}

// UpdateTaskRequest patches one task. An empty due_date clears it.
type UpdateTaskRequest struct {
	Title     *string   `json:"title,omitempty"`
	Status    *string   `json:"status,omitempty" enum:"todo,in-progress,completed"`
	Assignees *[]string `json:"assignees,omitempty"`
	DueDate   *string   `json:"due_date,omitempty"`
}

// statusOnly reports whether the patch changes nothing but the status.
func (r UpdateTaskRequest) statusOnly() bool {
	return r.Status != nil && r.Title == nil && r.Assignees == nil && r.DueDate == nil
}

type TeamMemberRequest struct {
	Name string `json:"name" minLength:"1"`
}

type DevLoginRequest struct {
	ActorID    string `json:"actor_id"`
	Name       string `json:"name,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" minimum:"0"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Responses

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type MeResponse struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	Source  string `json:"source" enum:"jwt,api_key"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// CreatedAPIKeyResponse carries the plaintext key. It is shown once.
type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func taskDraft(in TaskRequest) engine.TaskDraft {
	return engine.TaskDraft{
		ID:        in.ID,
		Title:     in.Title,
		Status:    domain.TaskStatus(in.Status),
		Assignees: in.Assignees,
		DueDate:   in.DueDate,
	}
}

func projectDraft(in ProjectRequest) engine.ProjectDraft {
	d := engine.ProjectDraft{
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		Team:        in.Team,
	}
	for _, t := range in.Tasks {
		d.Tasks = append(d.Tasks, taskDraft(t))
	}
	return d
}

func taskPatch(in UpdateTaskRequest) engine.TaskPatch {
	p := engine.TaskPatch{Title: in.Title}
	if in.Status != nil {
		s := domain.TaskStatus(*in.Status)
		p.Status = &s
	}
	if in.Assignees != nil {
		p.SetAssignees = true
		p.Assignees = *in.Assignees
	}
	if in.DueDate != nil {
		if *in.DueDate == "" {
			p.ClearDueDate = true
		} else {
			p.DueDate = in.DueDate
		}
	}
	return p
}

func viewState(expanded []string) board.ViewState {
	v := board.ViewState{}
	for _, id := range expanded {
		if id == "" || v.IsExpanded(id) {
			continue
		}
		v = v.Toggle(id)
	}
	return v
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
