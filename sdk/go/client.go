package taskbasesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskbase HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents the API user model (partial).
type User struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	OrgID         string `json:"org_id"`
	EmailVerified bool   `json:"email_verified"`
}

// AuthResponse carries a session token and the authenticated user.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Workspace represents the API workspace model (partial).
type Workspace struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Name  string `json:"name"`
}

// Step represents a task step.
type Step struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Requirement string `json:"requirement"`
	Status      string `json:"status"`
}

// Task represents the API task model (partial).
type Task struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspace_id"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	Steps       []Step  `json:"steps"`
}

// StepSpec declares a step when creating a task.
type StepSpec struct {
	Description string `json:"description"`
	Requirement string `json:"requirement,omitempty"`
}

// Plan represents a subscription plan.
type Plan struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Interval   string `json:"interval"`
	Active     bool   `json:"active"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Register signs up a new organization and its admin user, and stores the
// returned session token on the client.
func (c *Client) Register(ctx context.Context, name, email, password, orgName string) (AuthResponse, error) {
	body := map[string]any{
		"name":     name,
		"email":    email,
		"password": password,
		"org_name": orgName,
	}
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "auth/register", body, &resp); err != nil {
		return AuthResponse{}, err
	}
	c.BearerToken = resp.Token
	return resp, nil
}

// Login authenticates and stores the returned session token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	body := map[string]any{"email": email, "password": password}
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return AuthResponse{}, err
	}
	c.BearerToken = resp.Token
	return resp, nil
}

// CreateWorkspace creates a workspace in an organization.
func (c *Client) CreateWorkspace(ctx context.Context, orgID, name, description string) (Workspace, error) {
	body := map[string]any{"name": name, "description": description}
	var resp Workspace
	endpoint := fmt.Sprintf("orgs/%s/workspaces", url.PathEscape(orgID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateTask creates a task with its steps.
func (c *Client) CreateTask(ctx context.Context, workspaceID, title string, steps []StepSpec) (Task, error) {
	body := map[string]any{"title": title, "steps": steps}
	var resp Task
	endpoint := fmt.Sprintf("workspaces/%s/tasks", url.PathEscape(workspaceID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// StartStep moves a pending step into progress.
func (c *Client) StartStep(ctx context.Context, taskID string, index int) (Task, error) {
	return c.stepAction(ctx, taskID, index, "start", nil)
}

// SubmitStep submits a step for approval, or completes it when the step
// carries no requirement.
func (c *Client) SubmitStep(ctx context.Context, taskID string, index int, comment string) (Task, error) {
	body := map[string]any{}
	if comment != "" {
		body["comment"] = comment
	}
	return c.stepAction(ctx, taskID, index, "submit", body)
}

// ReviewStep approves or rejects a step under review.
func (c *Client) ReviewStep(ctx context.Context, taskID string, index int, approve bool, note string) (Task, error) {
	body := map[string]any{"approve": approve}
	if note != "" {
		body["note"] = note
	}
	return c.stepAction(ctx, taskID, index, "review", body)
}

// ResumeStep reopens a rejected step for another attempt.
func (c *Client) ResumeStep(ctx context.Context, taskID string, index int) (Task, error) {
	return c.stepAction(ctx, taskID, index, "resume", nil)
}

func (c *Client) stepAction(ctx context.Context, taskID string, index int, action string, body any) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/steps/%d/%s", url.PathEscape(taskID), index, action)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListPlans returns the active plan catalog.
func (c *Client) ListPlans(ctx context.Context) ([]Plan, error) {
	var resp []Plan
	err := c.do(ctx, http.MethodGet, "plans", nil, &resp)
	return resp, err
}

// Events returns recent audit events for an organization.
func (c *Client) Events(ctx context.Context, orgID string, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("orgs/%s/events", url.PathEscape(orgID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/api/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
