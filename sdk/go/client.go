package boardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"projectboard/internal/board"
	"projectboard/internal/domain"
	"projectboard/internal/engine"
)

type (
	Project   = domain.Project
	Task      = domain.Task
	Dashboard = engine.Dashboard
	Timeline  = engine.Timeline
)

// Client is a minimal project board HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// TaskInput describes a task in create and replace requests.
type TaskInput struct {
	ID        string   `json:"id,omitempty"`
	Title     string   `json:"title"`
	Status    string   `json:"status,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
	DueDate   *string  `json:"due_date,omitempty"`
}

// ProjectInput is the body of project create and replace requests.
type ProjectInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	DueDate     string      `json:"due_date"`
	Priority    int         `json:"priority"`
	Tasks       []TaskInput `json:"tasks,omitempty"`
	Team        []string    `json:"team,omitempty"`
}

// ViewOptions select and order projects for Dashboard and Timeline.
// Empty fields use the server defaults.
type ViewOptions struct {
	Deadline   string
	Priority   string
	Completion string
	TeamMember string
	Search     string
	Sort       string
	Expanded   []string
}

func (o ViewOptions) values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("deadline", o.Deadline)
	set("priority", o.Priority)
	set("completion", o.Completion)
	set("team_member", o.TeamMember)
	set("search", o.Search)
	set("sort", o.Sort)
	if len(o.Expanded) > 0 {
		v.Set("expanded", strings.Join(o.Expanded, ","))
	}
	return v
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// ListProjects returns every project, newest first.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, projectPath(id), nil, &resp)
	return resp, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, in ProjectInput) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", in, &resp)
	return resp, err
}

// UpdateProject replaces a project's fields and task list.
func (c *Client) UpdateProject(ctx context.Context, id string, in ProjectInput) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPut, projectPath(id), in, &resp)
	return resp, err
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, projectPath(id), nil, nil)
}

// AddTask appends a task and returns the updated project.
func (c *Client) AddTask(ctx context.Context, projectID string, in TaskInput) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, projectPath(projectID)+"/tasks", in, &resp)
	return resp, err
}

// SetTaskStatus moves a task to status and returns the updated project.
func (c *Client) SetTaskStatus(ctx context.Context, projectID, taskID, status string) (Project, error) {
	var resp Project
	endpoint := projectPath(projectID) + "/tasks/" + url.PathEscape(taskID)
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// Dashboard returns totals and the filtered, sorted project list.
func (c *Client) Dashboard(ctx context.Context, opts ViewOptions) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, withQuery("dashboard", opts.values()), nil, &resp)
	return resp, err
}

// Timeline returns the 12 month grid for the selected projects.
func (c *Client) Timeline(ctx context.Context, opts ViewOptions) (Timeline, error) {
	var resp Timeline
	err := c.do(ctx, http.MethodGet, withQuery("timeline", opts.values()), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", v), nil, &resp)
	return resp, err
}

// CellGrid is a convenience for callers that only need the cell states.
func CellGrid(tl Timeline) map[string][]board.CellState {
	out := make(map[string][]board.CellState, len(tl.Projects))
	for _, p := range tl.Projects {
		out[p.ProjectID] = p.Cells
	}
	return out
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func projectPath(id string) string {
	return "projects/" + url.PathEscape(id)
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
