// Package bedrock adapts AWS Bedrock image models to the engine contract.
// Generation goes through InvokeModel against a Stability-family model id.
package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"pipeline/internal/domain"
	"pipeline/internal/engine"
)

const defaultModelID = "stability.stable-diffusion-xl-v1"

// invoker is the slice of the bedrockruntime client the adapter needs.
type invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Options struct {
	EngineID   string
	Region     string
	ModelID    string
	ScratchDir string

	// Invoker overrides the SDK client, for tests.
	Invoker invoker
	// ProbeClient overrides the HTTP client used by HealthCheck.
	ProbeClient *http.Client
}

// Client implements engine.Adapter on top of the Bedrock runtime API.
type Client struct {
	engine.UnsupportedCapabilities

	engineID   string
	region     string
	modelID    string
	scratchDir string
	invoker    invoker
	probe      *http.Client
}

// NewClient builds the adapter, loading the default AWS credential chain
// unless Options.Invoker is supplied.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	id := opts.EngineID
	if id == "" {
		id = "bedrock"
	}
	model := opts.ModelID
	if model == "" {
		model = defaultModelID
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	inv := opts.Invoker
	if inv == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("bedrock: load aws config: %w", err)
		}
		inv = bedrockruntime.NewFromConfig(awsCfg)
	}
	probeClient := opts.ProbeClient
	if probeClient == nil {
		probeClient = &http.Client{Timeout: 5 * time.Second}
	}

	return &Client{
		engineID:   id,
		region:     region,
		modelID:    model,
		scratchDir: opts.ScratchDir,
		invoker:    inv,
		probe:      probeClient,
	}, nil
}

func (c *Client) EngineID() string              { return c.engineID }
func (c *Client) EngineType() domain.EngineType { return domain.EngineTypeRemote }

// HealthCheck probes the regional endpoint for plain reachability. Any HTTP
// response counts; auth errors still prove the service is reachable.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	endpoint := c.probeEndpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (c *Client) probeEndpoint() string {
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/", c.region)
}

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type invokeRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CFGScale    float64      `json:"cfg_scale"`
	Seed        int64        `json:"seed,omitempty"`
	Steps       int          `json:"steps"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
}

type invokeResponse struct {
	Result    string `json:"result"`
	Artifacts []struct {
		Seed         int64  `json:"seed"`
		Base64       string `json:"base64"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

// GenerateImage invokes the model and writes the first artifact to scratch.
func (c *Client) GenerateImage(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error) {
	prompts := []textPrompt{{Text: strings.TrimSpace(req.Prompt), Weight: 1.0}}
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		prompts = append(prompts, textPrompt{Text: neg, Weight: -1.0})
	}
	payload := invokeRequest{
		TextPrompts: prompts,
		CFGScale:    floatParam(req.Params, 7.0, "cfg_scale", "guidance_scale"),
		Seed:        req.Seed,
		Steps:       intParam(req.Params, 30, "steps"),
		Width:       intParam(req.Params, 512, "width"),
		Height:      intParam(req.Params, 512, "height"),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	out, err := c.invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: invoke %s: %v: %w", c.modelID, err, domain.ErrGenerationFailed)
	}

	var decoded invokeResponse
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		return nil, fmt.Errorf("bedrock: decode response: %v: %w", err, domain.ErrGenerationFailed)
	}
	if len(decoded.Artifacts) == 0 {
		return nil, fmt.Errorf("bedrock: empty artifact set: %w", domain.ErrGenerationFailed)
	}
	first := decoded.Artifacts[0]
	if first.FinishReason == "ERROR" || first.FinishReason == "CONTENT_FILTERED" {
		return nil, fmt.Errorf("bedrock: finish reason %s: %w", first.FinishReason, domain.ErrGenerationFailed)
	}

	data, err := base64.StdEncoding.DecodeString(first.Base64)
	if err != nil {
		return nil, fmt.Errorf("bedrock: decode artifact: %v: %w", err, domain.ErrGenerationFailed)
	}
	path, err := c.writeScratch(req.JobID, data)
	if err != nil {
		return nil, err
	}

	return &engine.GenerateResult{
		OutputPath: path,
		Metadata: map[string]any{
			"model_id": c.modelID,
			"region":   c.region,
			"seed":     first.Seed,
			"steps":    payload.Steps,
		},
	}, nil
}

func (c *Client) writeScratch(jobID string, data []byte) (string, error) {
	dir := c.scratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("bedrock: scratch dir: %w", err)
	}
	name := fmt.Sprintf("%s_%d.png", jobID, time.Now().UnixNano())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("bedrock: write output: %w", err)
	}
	return path, nil
}

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
