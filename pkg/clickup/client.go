// Package clickup provides a client for the ClickUp v2 REST API, limited to
// the list, task, custom field and tag endpoints used for lead follow-up.
package clickup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/recovery-sync/internal/resilience"
)

const (
	defaultBaseURL = "https://api.clickup.com/api/v2"
	serviceName    = "clickup"

	// DefaultRateLimit is ClickUp's per-token request budget per minute.
	DefaultRateLimit = 100
)

// ErrTagExists is returned by AddTag when the task already carries the tag.
var ErrTagExists = errors.New("clickup: tag already on task")

// Client defines the ClickUp operations used for lead follow-up.
type Client interface {
	// ListFields returns the custom fields accessible on the configured list.
	ListFields(ctx context.Context) ([]Field, error)
	// SearchTasks returns tasks (open, closed, not archived) matching every filter.
	SearchTasks(ctx context.Context, filters []FieldFilter) ([]Task, error)
	GetTask(ctx context.Context, taskID string) (*Task, error)
	CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error)
	UpdateTask(ctx context.Context, taskID string, req UpdateTaskRequest) (*Task, error)
	// SetCustomField sets one custom field value on a task.
	SetCustomField(ctx context.Context, taskID, fieldID string, value any) error
	// AddTag attaches a tag to a task. Returns ErrTagExists if it is already there.
	AddTag(ctx context.Context, taskID, tag string) error
}

// Field is a custom field definition.
type Field struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	TypeConfig TypeConfig `json:"type_config"`
}

// TypeConfig holds the option list for drop_down and labels fields.
type TypeConfig struct {
	Options []FieldOption `json:"options"`
}

// FieldOption is one selectable option. Labels fields carry Label,
// drop_down fields carry Name.
type FieldOption struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Label string `json:"label,omitempty"`
	Color string `json:"color,omitempty"`
}

// DisplayName returns the option's label, falling back to its name.
func (o FieldOption) DisplayName() string {
	if o.Label != "" {
		return o.Label
	}
	return o.Name
}

// FieldFilter is one custom_fields search condition.
type FieldFilter struct {
	FieldID  string `json:"field_id"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Task is a ClickUp task.
type Task struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Tags         []Tag         `json:"tags"`
	CustomFields []CustomField `json:"custom_fields"`
	URL          string        `json:"url,omitempty"`
}

// Tag is a task tag.
type Tag struct {
	Name string `json:"name"`
}

// CustomField is a custom field value as carried by a task.
type CustomField struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value,omitempty"`
}

// TagNames returns the task's tag names.
func (t *Task) TagNames() []string {
	out := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		if tag.Name != "" {
			out = append(out, tag.Name)
		}
	}
	return out
}

// CustomFieldValue is a custom field assignment on task creation.
type CustomFieldValue struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// CreateTaskRequest is the body for POST /list/{list_id}/task.
type CreateTaskRequest struct {
	Name         string             `json:"name"`
	Tags         []string           `json:"tags,omitempty"`
	CustomFields []CustomFieldValue `json:"custom_fields,omitempty"`
}

// UpdateTaskRequest is the body for PUT /task/{task_id}. Custom fields are
// not accepted here; use SetCustomField.
type UpdateTaskRequest struct {
	Name string `json:"name,omitempty"`
}

// apiError is ClickUp's error envelope.
type apiError struct {
	Err   string `json:"err"`
	ECode string `json:"ECODE"`
}

// Option configures the ClickUp client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the requests-per-minute budget. Zero or less
// disables throttling.
func WithRateLimit(perMinute int) Option {
	return func(c *httpClient) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), max(perMinute/10, 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	token   string
	listID  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a ClickUp client bound to one list.
func NewClient(token, listID string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		listID:  listID,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	WithRateLimit(DefaultRateLimit)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// do sends one request and returns the response body for 2xx statuses.
// Other statuses are returned as a *resilience.RejectionError.
func (c *httpClient) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "clickup: rate limit")
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, eris.Wrap(err, "clickup: marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "clickup: create request")
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "clickup: %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "clickup: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		detail := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &ae) == nil && ae.Err != "" {
			detail = ae.Err
		}
		return respBody, resilience.NewRejectionError(serviceName, resp.StatusCode, ae.ECode, detail)
	}
	return respBody, nil
}

func (c *httpClient) ListFields(ctx context.Context) ([]Field, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/list/%s/field", c.listID), nil)
	if err != nil {
		return nil, eris.Wrap(err, "clickup: list fields")
	}
	var out struct {
		Fields []Field `json:"fields"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "clickup: unmarshal fields")
	}
	return out.Fields, nil
}

func (c *httpClient) SearchTasks(ctx context.Context, filters []FieldFilter) ([]Task, error) {
	q := url.Values{}
	q.Set("archived", "false")
	q.Set("include_closed", "true")
	if len(filters) > 0 {
		b, err := json.Marshal(filters)
		if err != nil {
			return nil, eris.Wrap(err, "clickup: marshal filters")
		}
		q.Set("custom_fields", string(b))
	}

	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/list/%s/task?%s", c.listID, q.Encode()), nil)
	if err != nil {
		return nil, eris.Wrap(err, "clickup: search tasks")
	}
	var out struct {
		Tasks []Task `json:"tasks"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "clickup: unmarshal tasks")
	}
	return out.Tasks, nil
}

func (c *httpClient) GetTask(ctx context.Context, taskID string) (*Task, error) {
	body, err := c.do(ctx, http.MethodGet, "/task/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "clickup: get task %s", taskID)
	}
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, eris.Wrap(err, "clickup: unmarshal task")
	}
	return &t, nil
}

func (c *httpClient) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/list/%s/task", c.listID), req)
	if err != nil {
		return nil, eris.Wrap(err, "clickup: create task")
	}
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, eris.Wrap(err, "clickup: unmarshal created task")
	}
	if t.ID == "" {
		return nil, eris.New("clickup: create task: response has no id")
	}
	return &t, nil
}

func (c *httpClient) UpdateTask(ctx context.Context, taskID string, req UpdateTaskRequest) (*Task, error) {
	body, err := c.do(ctx, http.MethodPut, "/task/"+url.PathEscape(taskID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "clickup: update task %s", taskID)
	}
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, eris.Wrap(err, "clickup: unmarshal updated task")
	}
	return &t, nil
}

func (c *httpClient) SetCustomField(ctx context.Context, taskID, fieldID string, value any) error {
	path := fmt.Sprintf("/task/%s/field/%s", url.PathEscape(taskID), url.PathEscape(fieldID))
	if _, err := c.do(ctx, http.MethodPost, path, map[string]any{"value": value}); err != nil {
		return eris.Wrapf(err, "clickup: set field %s on task %s", fieldID, taskID)
	}
	return nil
}

func (c *httpClient) AddTag(ctx context.Context, taskID, tag string) error {
	path := fmt.Sprintf("/task/%s/tag/%s", url.PathEscape(taskID), url.PathEscape(tag))
	body, err := c.do(ctx, http.MethodPost, path, nil)
	if err == nil {
		return nil
	}
	var re *resilience.RejectionError
	if errors.As(err, &re) && re.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(string(body)), "already") {
		return ErrTagExists
	}
	return eris.Wrapf(err, "clickup: add tag %q to task %s", tag, taskID)
}
