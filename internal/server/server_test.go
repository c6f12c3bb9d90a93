package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"projectboard/internal/config"
	"projectboard/internal/db"
	"projectboard/internal/domain"
	"projectboard/internal/engine"
	"projectboard/internal/engine/auth"
	"projectboard/internal/migrate"
	"projectboard/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	Key    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// auth returns headers carrying the API key minted for actor "tester".
func (s *testServer) auth() map[string]string {
	return map[string]string{"X-Api-Key": s.Key}
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC) }
	_, key, err := e.CreateAPIKey(context.Background(), "tester", "test")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret, DevLogin: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		Key:    key,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func createProject(t *testing.T, srv *testServer, body map[string]any) domain.Project {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", body, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func TestAuthGate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("expected unauthorized, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"X-Api-Key": "pbk_wrong"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("expected invalid credentials, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"Authorization": "Basic abc"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for basic auth, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, srv.auth())
	if res.StatusCode != http.StatusOK || strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("expected empty list, got %d %s", res.StatusCode, string(data))
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "ana", "name": "Ana"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me MeResponse
	_ = json.Unmarshal(data, &me)
	if me.ActorID != "ana" || me.Name != "Ana" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}

	forged, err := auth.IssueToken("other-secret", "ana", "", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + forged})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged token accepted: %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": " "}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d %s", res.StatusCode, string(data))
	}
}

func TestProjectLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, map[string]any{
		"title":    "E-commerce Platform",
		"due_date": "2024-09-07",
		"priority": 2,
		"team":     []string{"Ana"},
		"tasks": []map[string]any{
			{"title": "Design", "status": "completed"},
			{"title": "Build"},
		},
	})
	if p.Progress != 50 || len(p.Tasks) != 2 {
		t.Fatalf("unexpected created project %+v", p)
	}
	base := srv.URL + "/v0/projects/" + p.ID

	res, data := doJSON(t, client, http.MethodPatch, base+"/tasks/"+p.Tasks[1].ID, map[string]any{"status": "completed"}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	var got domain.Project
	_ = json.Unmarshal(data, &got)
	if got.Progress != 100 || got.Tasks[1].CompletedAt == nil {
		t.Fatalf("status change not applied: %+v", got)
	}

	res, data = doJSON(t, client, http.MethodPatch, base+"/tasks/"+p.Tasks[1].ID, map[string]any{"title": "Build API", "assignees": []string{"Ana", "Rui"}, "due_date": "2024-08-01"}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch fields %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &got)
	if got.Tasks[1].Title != "Build API" || len(got.Tasks[1].Assignees) != 2 || got.Tasks[1].DueDate == nil {
		t.Fatalf("field patch not applied: %+v", got.Tasks[1])
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/tasks", map[string]any{"title": "Launch"}, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add task %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &got)
	if len(got.Tasks) != 3 || got.Progress != 67 {
		t.Fatalf("after add: %d tasks progress %d", len(got.Tasks), got.Progress)
	}
	launchID := got.Tasks[2].ID

	res, data = doJSON(t, client, http.MethodPost, base+"/team", map[string]any{"name": "Rui"}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("add member %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, base+"/team/"+url.PathEscape("Ana"), nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("remove member %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &got)
	if len(got.Team) != 1 || got.Team[0] != "Rui" {
		t.Fatalf("team = %v", got.Team)
	}

	res, data = doJSON(t, client, http.MethodDelete, base+"/tasks/"+launchID, nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("remove task %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPut, base, map[string]any{
		"title":    "Storefront",
		"due_date": "2024-10-01",
		"priority": 1,
		"tasks":    []map[string]any{{"id": p.Tasks[0].ID, "title": "Design", "status": "completed"}},
	}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &got)
	if got.Title != "Storefront" || len(got.Tasks) != 1 || len(got.Team) != 0 || *got.Tasks[0].CompletedAt != *p.Tasks[0].CompletedAt {
		t.Fatalf("replace result %+v", got)
	}

	res, data = doJSON(t, client, http.MethodDelete, base, nil, srv.auth())
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, base, nil, srv.auth())
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("expected 404 after delete, got %d %s", res.StatusCode, string(data))
	}
}

func TestValidationErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	cases := []map[string]any{
		{"title": "A", "due_date": "2024-09-07", "priority": 9},
		{"title": "A", "due_date": "tomorrow", "priority": 1},
		{"title": "", "due_date": "2024-09-07", "priority": 1},
		{"title": "A", "due_date": "2024-09-07", "priority": 1, "tasks": []map[string]any{{"title": "x", "status": "done"}}},
	}
	for i, body := range cases {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", body, srv.auth())
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d %s", i, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", nil, srv.auth())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/missing/tasks/x", map[string]any{"status": "todo"}, srv.auth())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project: expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestDashboardAndTimeline(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	web := createProject(t, srv, map[string]any{
		"title": "Website", "due_date": "2024-06-10", "priority": 1, "team": []string{"Ana"},
		"tasks": []map[string]any{{"title": "a", "status": "completed"}, {"title": "b"}, {"title": "c"}, {"title": "d"}},
	})
	createProject(t, srv, map[string]any{
		"title": "Api", "due_date": "2024-12-01", "priority": 3, "team": []string{"Rui"},
		"tasks": []map[string]any{{"title": "a"}},
	})

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard?priority=1&sort=name", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard %d: %s", res.StatusCode, string(data))
	}
	var dash engine.Dashboard
	if err := json.Unmarshal(data, &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dash.Stats.TotalProjects != 2 || dash.Stats.TotalTasks != 5 || dash.Stats.TeamMembers != 2 {
		t.Fatalf("stats %+v", dash.Stats)
	}
	if len(dash.Projects) != 1 || dash.Projects[0].ID != web.ID || dash.Projects[0].HiddenTasks != 1 {
		t.Fatalf("selection %+v", dash.Projects)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard?deadline=someday", nil, srv.auth())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad deadline: expected 400, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard?priority=7", nil, srv.auth())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad priority: expected 400, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/timeline?sort=dueDate&expanded="+web.ID, nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("timeline %d: %s", res.StatusCode, string(data))
	}
	var tl engine.Timeline
	if err := json.Unmarshal(data, &tl); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(tl.Window.Months) != 12 || tl.Window.Months[0].Label != "Jun 24" {
		t.Fatalf("window %+v", tl.Window.Months)
	}
	if len(tl.Projects) != 2 || tl.Projects[0].ProjectID != web.ID || !tl.Projects[0].Expanded || len(tl.Projects[0].VisibleTasks) != 4 {
		t.Fatalf("timeline projects %+v", tl.Projects)
	}
	if len(tl.Projects[0].Cells) != 48 {
		t.Fatalf("expected 48 cells, got %d", len(tl.Projects[0].Cells))
	}
}

func TestAPIKeysAndEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{"name": "ci"}, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key %d: %s", res.StatusCode, string(data))
	}
	var created CreatedAPIKeyResponse
	_ = json.Unmarshal(data, &created)
	if created.Key == "" || created.ActorID != "tester" {
		t.Fatalf("created key %+v", created)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/apikeys", nil, map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys %d: %s", res.StatusCode, string(data))
	}
	var keys []APIKeyResponse
	_ = json.Unmarshal(data, &keys)
	if len(keys) != 2 {
		t.Fatalf("expected two keys, got %d", len(keys))
	}

	token, err := auth.IssueToken(testSecret, "mallory", "", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/apikeys/"+created.ID, nil, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("expected forbidden, got %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/apikeys/"+created.ID, nil, srv.auth())
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete key: %d", res.StatusCode)
	}

	p := createProject(t, srv, map[string]any{"title": "Docs", "due_date": "2024-07-01", "priority": 4})
	for i := 0; i < 3; i++ {
		doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/team", map[string]any{"name": fmt.Sprintf("m%d", i)}, srv.auth())
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?project_id="+p.ID+"&limit=2", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode first page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" || page.Items[0].Type != "project.updated" {
		t.Fatalf("first page %+v", page)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?project_id="+p.ID+"&limit=2&cursor="+page.NextCursor, nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 %d: %s", res.StatusCode, string(data))
	}
	page = paginatedEvents{}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode second page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor != "" || page.Items[1].Type != "project.created" {
		t.Fatalf("second page %+v", page)
	}
	if title, _ := page.Items[1].Payload["project"].(map[string]any)["title"].(string); title != "Docs" {
		t.Fatalf("snapshot payload %+v", page.Items[1].Payload)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?cursor=abc", nil, srv.auth())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cursor: %d", res.StatusCode)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi %d", res.StatusCode)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/v0/dashboard", "/v0/timeline", "/v0/projects/{project_id}/tasks/{task_id}"} {
		if _, ok := paths[p]; !ok {
			t.Fatalf("openapi missing %s", p)
		}
	}
	if !strings.Contains(string(data), "bearerAuth") {
		t.Fatalf("security schemes missing")
	}
}

func TestHandleErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{engine.ValidationError{Field: "title", Message: "required"}, http.StatusBadRequest, "bad_request"},
		{fmt.Errorf("project x: %w", repo.ErrNotFound), http.StatusNotFound, "not_found"},
		{engine.ErrSaveInFlight, http.StatusConflict, "save_in_flight"},
		{auth.ForbiddenError{Action: "delete"}, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		got := handleError(tc.err).(*apiError)
		if got.GetStatus() != tc.status || got.Body.Code != tc.code {
			t.Fatalf("%v: got %d %s", tc.err, got.GetStatus(), got.Body.Code)
		}
	}
	if handleError(nil) != nil {
		t.Fatalf("nil error must map to nil")
	}
}
