// Package sdwebui adapts a locally hosted Stable Diffusion WebUI instance to
// the engine contract. The WebUI exposes a JSON API; generation goes through
// txt2img and health through the ping endpoint.
package sdwebui

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pipeline/internal/domain"
	"pipeline/internal/engine"
)

const (
	defaultEngineID = "local"
	txt2imgPath     = "/sdapi/v1/txt2img"
	pingPath        = "/internal/ping"
)

type Options struct {
	EngineID   string
	BaseURL    string
	ScratchDir string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to one WebUI instance. It implements engine.Adapter.
type Client struct {
	engine.UnsupportedCapabilities

	engineID   string
	baseURL    string
	scratchDir string
	httpClient *http.Client
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "http://127.0.0.1:7860"
	}
	id := opts.EngineID
	if id == "" {
		id = defaultEngineID
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		engineID:   id,
		baseURL:    base,
		scratchDir: opts.ScratchDir,
		httpClient: client,
	}
}

func (c *Client) EngineID() string              { return c.engineID }
func (c *Client) EngineType() domain.EngineType { return domain.EngineTypeLocal }

// HealthCheck probes the ping endpoint. Transport errors and server errors
// both collapse to false.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pingPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Seed           int64   `json:"seed"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	SamplerName    string  `json:"sampler_name,omitempty"`
	BatchSize      int     `json:"batch_size"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
	Detail string   `json:"detail"`
	Error  string   `json:"error"`
}

// GenerateImage runs txt2img and writes the first returned image to the
// scratch directory. Transport failures classify as engine-offline; an
// engine-side error or empty result classifies as generation failure.
func (c *Client) GenerateImage(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error) {
	seed := req.Seed
	if seed == 0 {
		seed = -1
	}
	payload := txt2imgRequest{
		Prompt:         strings.TrimSpace(req.Prompt),
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		Seed:           seed,
		Steps:          intParam(req.Params, 20, "steps"),
		CFGScale:       floatParam(req.Params, 7.0, "cfg_scale", "guidance_scale"),
		Width:          intParam(req.Params, 512, "width"),
		Height:         intParam(req.Params, 512, "height"),
		SamplerName:    stringParam(req.Params, "", "sampler", "sampler_name"),
		BatchSize:      1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+txt2imgPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sdwebui: txt2img request: %v: %w", err, domain.ErrEngineOffline)
	}
	defer resp.Body.Close()

	var out txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("sdwebui: http %d: %w", resp.StatusCode, domain.ErrGenerationFailed)
		}
		return nil, fmt.Errorf("sdwebui: decode response: %v: %w", err, domain.ErrGenerationFailed)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		detail := out.Detail
		if detail == "" {
			detail = out.Error
		}
		if detail == "" {
			detail = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("sdwebui: %s: %w", detail, domain.ErrGenerationFailed)
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("sdwebui: empty image set: %w", domain.ErrGenerationFailed)
	}

	data, err := base64.StdEncoding.DecodeString(out.Images[0])
	if err != nil {
		return nil, fmt.Errorf("sdwebui: decode image: %v: %w", err, domain.ErrGenerationFailed)
	}

	path, err := c.writeScratch(req.JobID, data)
	if err != nil {
		return nil, err
	}
	return &engine.GenerateResult{
		OutputPath: path,
		Metadata: map[string]any{
			"steps":     payload.Steps,
			"cfg_scale": payload.CFGScale,
			"width":     payload.Width,
			"height":    payload.Height,
			"seed":      seed,
		},
	}, nil
}

func (c *Client) writeScratch(jobID string, data []byte) (string, error) {
	dir := c.scratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sdwebui: scratch dir: %w", err)
	}
	name := fmt.Sprintf("%s_%d.png", jobID, time.Now().UnixNano())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("sdwebui: write output: %w", err)
	}
	return path, nil
}

// Param maps arrive from YAML tiers and JSON submissions, so numeric values
// may be int, int64 or float64 depending on the decoder.
func intParam(params map[string]any, fallback int, keys ...string) int {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			switch n := v.(type) {
			case int:
				return n
			case int64:
				return int(n)
			case float64:
				return int(n)
			}
		}
	}
	return fallback
}

func floatParam(params map[string]any, fallback float64, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			switch n := v.(type) {
			case float64:
				return n
			case int:
				return float64(n)
			case int64:
				return float64(n)
			}
		}
	}
	return fallback
}

func stringParam(params map[string]any, fallback string, keys ...string) string {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return fallback
}
