// Package engine defines the adapter contract generation backends implement
// and the registry the orchestrator resolves them through.
package engine

import (
	"context"
	"fmt"

	"pipeline/internal/domain"
)

// GenerateRequest is the normalized request passed to any engine adapter.
// Params carries the quality-tier-resolved generation parameters (steps,
// guidance scale, dimensions and similar knobs).
type GenerateRequest struct {
	JobID          string
	Prompt         string
	NegativePrompt string
	Seed           int64
	Params         map[string]any
}

// LipsyncRequest drives a character-performance capability.
type LipsyncRequest struct {
	JobID     string
	VideoPath string
	AudioPath string
	Params    map[string]any
}

// UpscaleRequest drives a post-processing capability.
type UpscaleRequest struct {
	JobID      string
	SourcePath string
	Factor     int
	Params     map[string]any
}

// GenerateResult is what a successful engine call yields. Exactly one of
// OutputPath (a local file the adapter wrote) or OutputURL (a remote
// reference) is set.
type GenerateResult struct {
	OutputPath string
	OutputURL  string
	Metadata   map[string]any
}

// Adapter is the uniform contract over generation backends. HealthCheck never
// returns an error; unreachability collapses to false. Optional capabilities
// return domain.ErrCapabilityUnsupported unless the backend overrides them.
type Adapter interface {
	EngineID() string
	EngineType() domain.EngineType
	HealthCheck(ctx context.Context) bool
	GenerateImage(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	GenerateVideo(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	ApplyLipsync(ctx context.Context, req LipsyncRequest) (*GenerateResult, error)
	Upscale(ctx context.Context, req UpscaleRequest) (*GenerateResult, error)
}

// UnsupportedCapabilities provides the optional Adapter methods as typed
// not-supported failures. Backends embed it and override what they implement.
type UnsupportedCapabilities struct{}

func (UnsupportedCapabilities) GenerateVideo(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	return nil, fmt.Errorf("generate_video: %w", domain.ErrCapabilityUnsupported)
}

func (UnsupportedCapabilities) ApplyLipsync(ctx context.Context, req LipsyncRequest) (*GenerateResult, error) {
	return nil, fmt.Errorf("apply_lipsync: %w", domain.ErrCapabilityUnsupported)
}

func (UnsupportedCapabilities) Upscale(ctx context.Context, req UpscaleRequest) (*GenerateResult, error) {
	return nil, fmt.Errorf("upscale: %w", domain.ErrCapabilityUnsupported)
}
