package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"taskbase/internal/config"
	"taskbase/internal/db"
	"taskbase/internal/domain"
	"taskbase/internal/engine"
	"taskbase/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/api",
		Auth:     AuthConfig{JWTSecret: cfg.Auth.JWTSecret, TokenTTLHours: cfg.Auth.TokenTTLHours},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, token string) (*http.Response, []byte) {
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
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
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

func register(t *testing.T, srv *testServer, email, orgName string) AuthResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/register", map[string]any{
		"name":     "Tester",
		"email":    email,
		"password": "password123",
		"org_name": orgName,
	}, "")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	var auth AuthResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	if auth.Token == "" {
		t.Fatalf("expected token in auth response")
	}
	return auth
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/me", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", envelope.Error.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	auth := register(t, srv, "admin@example.com", "Acme")
	client := srv.Client()

	// workspace
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/orgs/"+auth.User.OrgID+"/workspaces", map[string]any{
		"name": "Ops",
	}, auth.Token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create workspace status %d: %s", res.StatusCode, string(data))
	}
	var ws domain.Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		t.Fatalf("unmarshal workspace: %v", err)
	}

	// task with two steps
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/workspaces/"+ws.ID+"/tasks", map[string]any{
		"title":       "Deploy",
		"assignee_id": auth.User.ID,
		"steps": []map[string]any{
			{"description": "prepare"},
			{"description": "ship", "requirement": "approval"},
		},
	}, auth.Token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Status != domain.TaskNotStarted || len(task.Steps) != 2 {
		t.Fatalf("unexpected task %+v", task)
	}

	// walk step 0 through start and submit
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/"+task.ID+"/steps/0/start", nil, auth.Token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/"+task.ID+"/steps/0/submit", map[string]any{
		"comment": "prepared",
	}, auth.Token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatal(err)
	}
	if task.Steps[0].Status != domain.StepApproved {
		t.Fatalf("expected approved step, got %s", task.Steps[0].Status)
	}

	// out-of-order start is a 409
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/"+task.ID+"/steps/1/submit", map[string]any{}, auth.Token)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for submit before start, got %d: %s", res.StatusCode, string(data))
	}
}

func TestSelfReviewRejectedOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	auth := register(t, srv, "admin@example.com", "Acme")
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/orgs/"+auth.User.OrgID+"/workspaces", map[string]any{
		"name": "Solo",
	}, auth.Token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("workspace status %d: %s", res.StatusCode, string(data))
	}
	var ws domain.Workspace
	_ = json.Unmarshal(data, &ws)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/workspaces/"+ws.ID+"/tasks", map[string]any{
		"title":       "Own work",
		"assignee_id": auth.User.ID,
		"steps":       []map[string]any{{"description": "do it", "requirement": "approval"}},
	}, auth.Token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("task status %d: %s", res.StatusCode, string(data))
	}
	var task domain.Task
	_ = json.Unmarshal(data, &task)

	doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/"+task.ID+"/steps/0/start", nil, auth.Token)
	doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/"+task.ID+"/steps/0/submit", map[string]any{}, auth.Token)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks/"+task.ID+"/steps/0/review", map[string]any{
		"approve": true,
	}, auth.Token)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 self-review, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "self_review" {
		t.Fatalf("expected self_review code, got %q", envelope.Error.Code)
	}
}

func TestCrossOrgIsolation(t *testing.T) {
	srv := newTestServer(t)
	a := register(t, srv, "a@example.com", "OrgA")
	b := register(t, srv, "b@example.com", "OrgB")
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/orgs/"+a.User.OrgID+"/workspaces", map[string]any{
		"name": "Private",
	}, a.Token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("workspace status %d: %s", res.StatusCode, string(data))
	}
	var ws domain.Workspace
	_ = json.Unmarshal(data, &ws)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/workspaces/"+ws.ID, nil, b.Token)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 across orgs, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "not_a_member" {
		t.Fatalf("expected not_a_member, got %q", envelope.Error.Code)
	}
}
