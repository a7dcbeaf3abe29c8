// Package client is a typed REST client for the pipeline service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"pipeline/internal/domain"
	"pipeline/internal/events"
)

// Client talks to one pipeline server. The zero value is not usable; build
// one with New.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// Options configures a Client. BaseURL falls back to PIPELINE_SERVER_URL and
// then to localhost; UserID, when set, is sent as X-User-ID on every request.
type Options struct {
	BaseURL string
	UserID  string
	Timeout time.Duration
}

func New(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = os.Getenv("PIPELINE_SERVER_URL")
	}
	if base == "" {
		base = "http://localhost:8080"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		userID:     opts.UserID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status      int
	Code        string
	Message     string
	Field       string
	Remediation []string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s, field %s)", e.Message, e.Code, e.Field)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// SubmitJobRequest mirrors the POST /v1/jobs body.
type SubmitJobRequest struct {
	PresetID     string         `json:"preset_id"`
	Inputs       map[string]any `json:"inputs"`
	QualityLevel string         `json:"quality_level,omitempty"`
}

// SubmitJob enqueues a job and returns its id.
func (c *Client) SubmitJob(ctx context.Context, req SubmitJobRequest) (string, error) {
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// GetJob fetches one job by id.
func (c *Client) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobsOptions narrows ListJobs. Zero values are omitted.
type ListJobsOptions struct {
	Status   string
	PresetID string
	Limit    int
}

func (c *Client) ListJobs(ctx context.Context, opts ListJobsOptions) ([]domain.Job, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.PresetID != "" {
		q.Set("preset_id", opts.PresetID)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp struct {
		Items []domain.Job `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// CancelJob requests cancellation and returns the job as the server now sees it.
func (c *Client) CancelJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) JobArtifacts(ctx context.Context, jobID string) ([]domain.Artifact, error) {
	var resp struct {
		Items []domain.Artifact `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID)+"/artifacts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// JobEvents fetches the job's stored event history.
func (c *Client) JobEvents(ctx context.Context, jobID string) ([]events.Event, error) {
	var resp struct {
		Items []events.Event `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID)+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// DownloadArchive streams the job's artifact zip bundle into w.
func (c *Client) DownloadArchive(ctx context.Context, jobID string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+url.PathEscape(jobID)+"/artifacts/archive", nil)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	c.setHeaders(req, false)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: download archive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, raw)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("client: write archive: %w", err)
	}
	return nil
}

func (c *Client) ListPresets(ctx context.Context, category, engine string) ([]domain.WorkflowPreset, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if engine != "" {
		q.Set("engine", engine)
	}
	path := "/v1/presets"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp struct {
		Items []domain.WorkflowPreset `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) GetPreset(ctx context.Context, presetID string) (*domain.WorkflowPreset, error) {
	var p domain.WorkflowPreset
	if err := c.do(ctx, http.MethodGet, "/v1/presets/"+url.PathEscape(presetID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListEngines(ctx context.Context) ([]domain.EngineDescriptor, error) {
	var resp struct {
		Items []domain.EngineDescriptor `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/engines", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// WaitJob polls until the job reaches a terminal state or ctx expires.
func (c *Client) WaitJob(ctx context.Context, jobID string, interval time.Duration) (*domain.Job, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return job, ctx.Err()
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	c.setHeaders(req, body != nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
}

func decodeAPIError(status int, raw []byte) error {
	e := &APIError{Status: status, Code: "unknown", Message: strings.TrimSpace(string(raw))}
	var body struct {
		Error       string   `json:"error"`
		Code        string   `json:"code"`
		Field       string   `json:"field"`
		Remediation []string `json:"remediation"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		e.Code = body.Code
		e.Message = body.Error
		e.Field = body.Field
		e.Remediation = body.Remediation
	}
	return e
}
