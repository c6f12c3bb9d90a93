package domain

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      TaskStatus `json:"status" enum:"todo,in-progress,completed"`
	Assignees   []string   `json:"assignees"`
	DueDate     *string    `json:"due_date,omitempty" format:"date"`
	CompletedAt *string    `json:"completed_at,omitempty" format:"date-time"`
}

type Project struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     string   `json:"due_date" format:"date"`
	Priority    int      `json:"priority" minimum:"1" maximum:"5"`
	Progress    int      `json:"progress" minimum:"0" maximum:"100"`
	Tasks       []Task   `json:"tasks"`
	Team        []string `json:"team"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// Clone returns a deep copy so callers can derive new values without touching the source snapshot.
func (p Project) Clone() Project {
	out := p
	out.Team = append([]string{}, p.Team...)
	out.Tasks = make([]Task, len(p.Tasks))
	for i, t := range p.Tasks {
		out.Tasks[i] = t.Clone()
	}
	return out
}

func (t Task) Clone() Task {
	out := t
	out.Assignees = append([]string{}, t.Assignees...)
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		out.CompletedAt = &c
	}
	return out
}

// TaskByID returns the index of the task with the given id, or -1.
func (p Project) TaskByID(id string) int {
	for i, t := range p.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// HasMember reports exact-name membership in the project team.
func (p Project) HasMember(name string) bool {
	for _, m := range p.Team {
		if m == name {
			return true
		}
	}
	return false
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
