package dispatchsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Dawin dispatch HTTP API client.
type Client struct {
	BaseURL     string
	TenantID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, tenantID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		TenantID: tenantID,
		Timeout:  10 * time.Second,
	}
}

// Occurrence represents one recorded event.
type Occurrence struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	Category   string         `json:"category"`
	Payload    map[string]any `json:"payload"`
	OccurredAt string         `json:"occurred_at"`
	ActorID    string         `json:"actor_id"`
	CreatedAt  string         `json:"created_at"`
}

// Task represents the API task model.
type Task struct {
	ID               string  `json:"id"`
	OccurrenceID     string  `json:"occurrence_id"`
	EventType        string  `json:"event_type"`
	TaskType         string  `json:"task_type"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	Priority         string  `json:"priority"`
	DueAt            string  `json:"due_at"`
	AssignKind       string  `json:"assign_kind"`
	AssignValue      string  `json:"assign_value,omitempty"`
	AssigneeID       *string `json:"assignee_id,omitempty"`
	Unassigned       bool    `json:"unassigned,omitempty"`
	UnassignedReason *string `json:"unassigned_reason,omitempty"`
	Status           string  `json:"status"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
	CompletedAt      *string `json:"completed_at,omitempty"`
}

// Recipient is one resolved notification target.
type Recipient struct {
	Kind   string   `json:"kind"`
	Value  string   `json:"value,omitempty"`
	Users  []string `json:"users,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// Notification represents a derived notification.
type Notification struct {
	ID           string      `json:"id"`
	OccurrenceID string      `json:"occurrence_id"`
	EventType    string      `json:"event_type"`
	Template     string      `json:"template"`
	Channels     []string    `json:"channels"`
	Recipients   []Recipient `json:"recipients"`
	Status       string      `json:"status"`
	CreatedAt    string      `json:"created_at"`
	DispatchedAt *string     `json:"dispatched_at,omitempty"`
}

// RecordEventResult bundles an occurrence with everything derived from it.
// Unassigned lists ids of tasks persisted without a resolvable assignee.
type RecordEventResult struct {
	Occurrence    Occurrence     `json:"occurrence"`
	Tasks         []Task         `json:"tasks"`
	Notifications []Notification `json:"notifications"`
	Unassigned    []string       `json:"unassigned"`
}

// ValidationResult reports payload validation without recording anything.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// SimulationResult is a dry-run dispatch outcome.
type SimulationResult struct {
	Valid         bool           `json:"valid"`
	Errors        []string       `json:"errors"`
	Tasks         []Task         `json:"tasks"`
	Notifications []Notification `json:"notifications"`
	Unassigned    int            `json:"unassigned"`
}

// CapabilityResult answers one role capability question.
type CapabilityResult struct {
	Role      string `json:"role"`
	Action    string `json:"action"`
	EventType string `json:"event_type,omitempty"`
	TaskType  string `json:"task_type,omitempty"`
	Allowed   bool   `json:"allowed"`
}

// PaginatedTasks wraps task listings with a cursor.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedNotifications wraps notification listings with a cursor.
type PaginatedNotifications struct {
	Items      []Notification `json:"items"`
	NextCursor string         `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message are filled from the API
// error envelope when the body carries one.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.Status, e.Body)
}

// TaskListOptions filter ListTasks. Zero values are omitted.
type TaskListOptions struct {
	OccurrenceID string
	EventType    string
	TaskType     string
	Status       string
	Priority     string
	AssigneeID   string
	Unassigned   *bool
	Limit        int
	Cursor       string
}

// NotificationListOptions filter ListNotifications. Zero values are omitted.
type NotificationListOptions struct {
	OccurrenceID string
	EventType    string
	Template     string
	Status       string
	Limit        int
	Cursor       string
}

// RecordEvent records a business event and returns everything derived from it.
func (c *Client) RecordEvent(ctx context.Context, eventType string, payload map[string]any) (RecordEventResult, error) {
	return c.RecordEventAt(ctx, eventType, payload, "")
}

// RecordEventAt records a business event with an explicit occurrence time
// (RFC3339). An empty occurredAt means now.
func (c *Client) RecordEventAt(ctx context.Context, eventType string, payload map[string]any, occurredAt string) (RecordEventResult, error) {
	body := map[string]any{
		"event_type": eventType,
		"payload":    payload,
	}
	if occurredAt != "" {
		body["occurred_at"] = occurredAt
	}
	var resp RecordEventResult
	err := c.do(ctx, http.MethodPost, c.tenantPath("events"), body, &resp)
	return resp, err
}

// ValidateEvent checks a payload against the catalog without recording it.
func (c *Client) ValidateEvent(ctx context.Context, eventType string, payload map[string]any) (ValidationResult, error) {
	body := map[string]any{
		"event_type": eventType,
		"payload":    payload,
	}
	var resp ValidationResult
	err := c.do(ctx, http.MethodPost, c.tenantPath("events/validate"), body, &resp)
	return resp, err
}

// SimulateEvent dry-runs dispatch against live staffing. Nothing is persisted.
func (c *Client) SimulateEvent(ctx context.Context, eventType string, payload map[string]any) (SimulationResult, error) {
	body := map[string]any{
		"event_type": eventType,
		"payload":    payload,
	}
	var resp SimulationResult
	err := c.do(ctx, http.MethodPost, c.tenantPath("events/simulate"), body, &resp)
	return resp, err
}

// ListTasks returns one page of tasks.
func (c *Client) ListTasks(ctx context.Context, opts TaskListOptions) (PaginatedTasks, error) {
	q := url.Values{}
	setIf(q, "occurrence_id", opts.OccurrenceID)
	setIf(q, "event_type", opts.EventType)
	setIf(q, "task_type", opts.TaskType)
	setIf(q, "status", opts.Status)
	setIf(q, "priority", opts.Priority)
	setIf(q, "assignee_id", opts.AssigneeID)
	if opts.Unassigned != nil {
		q.Set("unassigned", strconv.FormatBool(*opts.Unassigned))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	setIf(q, "cursor", opts.Cursor)
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, withQuery(c.tenantPath("tasks"), q), nil, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, c.tenantPath("tasks/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// UpdateTaskStatus applies one lifecycle transition.
func (c *Client) UpdateTaskStatus(ctx context.Context, id, status string) (Task, error) {
	body := map[string]any{"status": status}
	var resp Task
	err := c.do(ctx, http.MethodPatch, c.tenantPath("tasks/"+url.PathEscape(id)), body, &resp)
	return resp, err
}

// NextTask picks the most pressing open task for an assignee. A 404 APIError
// means the queue is empty.
func (c *Client) NextTask(ctx context.Context, assigneeID string, includeUnassigned bool) (Task, error) {
	q := url.Values{}
	q.Set("assignee", assigneeID)
	if includeUnassigned {
		q.Set("include_unassigned", "true")
	}
	var resp Task
	err := c.do(ctx, http.MethodGet, withQuery(c.tenantPath("tasks/next"), q), nil, &resp)
	return resp, err
}

// ListNotifications returns one page of derived notifications.
func (c *Client) ListNotifications(ctx context.Context, opts NotificationListOptions) (PaginatedNotifications, error) {
	q := url.Values{}
	setIf(q, "occurrence_id", opts.OccurrenceID)
	setIf(q, "event_type", opts.EventType)
	setIf(q, "template", opts.Template)
	setIf(q, "status", opts.Status)
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	setIf(q, "cursor", opts.Cursor)
	var resp PaginatedNotifications
	err := c.do(ctx, http.MethodGet, withQuery(c.tenantPath("notifications"), q), nil, &resp)
	return resp, err
}

// CheckCapability asks whether a role may take an action. action is one of
// handle, initiate, execute, approve, delegate.
func (c *Client) CheckCapability(ctx context.Context, role, action, eventType, taskType string) (CapabilityResult, error) {
	q := url.Values{}
	q.Set("action", action)
	setIf(q, "event_type", eventType)
	setIf(q, "task_type", taskType)
	endpoint := withQuery(c.tenantPath("roles/"+url.PathEscape(role)+"/can"), q)
	var resp CapabilityResult
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Health pings the API.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "v1/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: string(body)}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func (c *Client) tenantPath(p string) string {
	tenant := url.PathEscape(c.TenantID)
	return fmt.Sprintf("v1/tenants/%s/%s", tenant, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
