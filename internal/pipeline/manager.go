// Package pipeline drives the job state machine: it validates submissions
// against a preset, resolves an engine, runs generation, and persists every
// transition through the history, artifact, and event stores.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"pipeline/internal/artifact"
	"pipeline/internal/domain"
	"pipeline/internal/engine"
	"pipeline/internal/events"
	"pipeline/internal/history"
	"pipeline/internal/infra"
	"pipeline/internal/preset"
)

// ErrClosed rejects submissions arriving after shutdown started.
var ErrClosed = errors.New("pipeline: manager closed")

// waitPollInterval paces Wait's fallback polling for jobs this process does
// not own a completion signal for.
const waitPollInterval = 200 * time.Millisecond

// Request is one generation submission.
type Request struct {
	PresetID     string
	Inputs       map[string]any
	QualityLevel string
	UserID       string
}

// Options wires a Manager. Presets, Engines, History, Artifacts, and Events
// are required; DefaultEngine falls back to "local"; EngineTimeout of zero
// leaves the engine call unbounded.
type Options struct {
	Presets       *preset.Registry
	Engines       *engine.Registry
	History       history.Store
	Artifacts     *artifact.Store
	Events        *events.Log
	Logger        infra.Logger
	DefaultEngine string
	EngineTimeout time.Duration
}

// Manager is the orchestrator. Submit returns as soon as the job record
// exists; execution runs on its own goroutine with every state write for a
// given job serialized through a per-job mutex.
type Manager struct {
	presets       *preset.Registry
	engines       *engine.Registry
	history       history.Store
	artifacts     *artifact.Store
	events        *events.Log
	logger        infra.Logger
	defaultEngine string
	engineTimeout time.Duration

	// baseCtx backs engine calls so a disconnecting submitter cannot abort
	// an execution that already owns a job record.
	baseCtx context.Context

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	done   map[string]chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewManager builds a Manager from its dependencies.
func NewManager(opts Options) *Manager {
	if opts.DefaultEngine == "" {
		opts.DefaultEngine = "local"
	}
	return &Manager{
		presets:       opts.Presets,
		engines:       opts.Engines,
		history:       opts.History,
		artifacts:     opts.Artifacts,
		events:        opts.Events,
		logger:        opts.Logger,
		defaultEngine: opts.DefaultEngine,
		engineTimeout: opts.EngineTimeout,
		baseCtx:       context.Background(),
		locks:         make(map[string]*sync.Mutex),
		done:          make(map[string]chan struct{}),
	}
}

// Submit validates the request, persists a queued job, and starts execution.
// It returns the job id immediately; Wait recovers synchronous behavior.
// Validation and consent failures reject before any job state exists.
func (m *Manager) Submit(ctx context.Context, req Request) (string, error) {
	p, ok := m.presets.Get(req.PresetID)
	if !ok {
		return "", fmt.Errorf("pipeline: preset %q: %w", req.PresetID, domain.ErrNotFound)
	}
	if err := validateRequest(p, req); err != nil {
		return "", err
	}

	tier, _ := p.QualityParams(req.QualityLevel)
	job := &domain.Job{
		ID:           uuid.NewString(),
		PresetID:     p.ID,
		UserID:       req.UserID,
		Status:       domain.JobStatusQueued,
		QualityLevel: tier,
		Inputs:       req.Inputs,
		CreatedAt:    time.Now().UTC(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	m.wg.Add(1)
	m.done[job.ID] = make(chan struct{})
	m.mu.Unlock()

	if err := m.history.SaveJob(ctx, job); err != nil {
		m.wg.Done()
		m.signalDone(job.ID)
		return "", fmt.Errorf("pipeline: save job: %w", err)
	}
	m.event(job.ID, events.LevelInfo, "queued", "job queued", map[string]any{
		"preset_id":     p.ID,
		"quality_level": tier,
	})

	go m.execute(job, p)
	return job.ID, nil
}

// GetJob is a pure read of the job record.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return m.history.GetJob(ctx, jobID)
}

// ListJobs returns job records newest first, filtered before truncation.
func (m *Manager) ListJobs(ctx context.Context, f history.ListFilter) ([]*domain.Job, error) {
	return m.history.ListJobs(ctx, f)
}

// Artifacts lists the stored artifacts for one job.
func (m *Manager) Artifacts(jobID string) []domain.Artifact {
	return m.artifacts.ListArtifacts(jobID)
}

// Cancel transitions a queued or running job to cancelled. It is cooperative:
// an in-flight engine call is not interrupted, but its terminal write loses
// to the cancel under the per-job status guard.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	lk := m.jobLock(jobID)
	lk.Lock()
	defer lk.Unlock()

	job, err := m.history.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrAlreadyTerminal
	}
	if err := m.history.UpdateJob(ctx, jobID, history.Update{
		Status: history.StatusPtr(domain.JobStatusCancelled),
	}); err != nil {
		return err
	}
	m.event(jobID, events.LevelInfo, "cancelled", "job cancelled by caller", nil)
	m.signalDone(jobID)
	return nil
}

// Wait blocks until the job reaches a terminal state and returns its final
// record. Jobs not executing in this process are polled from the store.
func (m *Manager) Wait(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	ch, ok := m.done[jobID]
	m.mu.Unlock()

	if ok {
		select {
		case <-ch:
			return m.history.GetJob(ctx, jobID)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		job, err := m.history.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops accepting submissions and waits for in-flight jobs, or until
// ctx expires.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: close: %w", ctx.Err())
	}
}

// execute runs one job to a terminal state. A recovered panic still lands the
// job in failed so nothing is left stuck in running.
func (m *Manager) execute(job *domain.Job, p domain.WorkflowPreset) {
	defer m.wg.Done()
	defer m.signalDone(job.ID)

	ctx := m.baseCtx
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("job_id", job.ID).Interface("panic", r).Msg("pipeline: execution panicked")
			m.finishFailed(ctx, job.ID, p, domain.CodeUnknown, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if !m.step(ctx, job.ID, history.Update{
		Status:   history.StatusPtr(domain.JobStatusRunning),
		Progress: history.ProgressPtr(10),
	}, events.LevelInfo, "running", "job started", nil) {
		return
	}

	engineID := p.DefaultEngine(m.defaultEngine)
	adapter, ok := m.engines.Get(engineID)
	if !ok {
		m.failJob(ctx, job.ID, p, fmt.Errorf("engine %q is not registered: %w", engineID, domain.ErrEngineUnknown))
		return
	}
	if !m.engines.Available(ctx, engineID) {
		m.failJob(ctx, job.ID, p, fmt.Errorf("engine %q failed its health check: %w", engineID, domain.ErrEngineOffline))
		return
	}

	if !m.step(ctx, job.ID, history.Update{
		Progress: history.ProgressPtr(25),
	}, events.LevelInfo, "generating", "generation started on engine "+engineID, map[string]any{
		"engine_id":     engineID,
		"quality_level": job.QualityLevel,
	}) {
		return
	}

	res, err := m.generateImage(ctx, adapter, buildGenerateRequest(job, p))
	if err != nil {
		m.failJob(ctx, job.ID, p, err)
		return
	}

	if !m.step(ctx, job.ID, history.Update{
		Progress: history.ProgressPtr(75),
	}, events.LevelInfo, "generated", "engine returned output", map[string]any{"engine_id": engineID}) {
		return
	}

	ref := res.OutputURL
	if res.OutputPath != "" {
		meta := make(map[string]any, len(res.Metadata)+3)
		for k, v := range res.Metadata {
			meta[k] = v
		}
		meta["preset_id"] = p.ID
		meta["quality_level"] = job.QualityLevel
		meta["engine_id"] = engineID

		relPath, err := m.artifacts.SaveArtifact(ctx, job.ID, domain.ArtifactTypeImage, res.OutputPath, meta)
		if err != nil {
			// %v on purpose: a missing scratch file must not read as a preset miss.
			m.failJob(ctx, job.ID, p, fmt.Errorf("store artifact: %v", err))
			return
		}
		if err := os.Remove(res.OutputPath); err != nil {
			m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("pipeline: scratch cleanup failed")
		}
		ref = relPath

		if !m.step(ctx, job.ID, history.Update{
			Progress: history.ProgressPtr(90),
		}, events.LevelInfo, "artifact_saved", "artifact stored", map[string]any{"relative_path": relPath}) {
			return
		}
	}

	m.step(ctx, job.ID, history.Update{
		Status:    history.StatusPtr(domain.JobStatusCompleted),
		Progress:  history.ProgressPtr(100),
		Outputs:   map[string]string{string(domain.ArtifactTypeImage): ref},
		OutputURL: history.StringPtr(ref),
	}, events.LevelInfo, "completed", "job completed", map[string]any{"output_url": ref})
}

// generateImage bounds the engine call when a timeout is configured.
func (m *Manager) generateImage(ctx context.Context, a engine.Adapter, req engine.GenerateRequest) (*engine.GenerateResult, error) {
	if m.engineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.engineTimeout)
		defer cancel()
	}
	return a.GenerateImage(ctx, req)
}

// step applies one job update and, when the write sticks, emits the matching
// event. A false return means execution must stop: the job went terminal
// elsewhere (cancel won the race) or the store rejected the write.
func (m *Manager) step(ctx context.Context, jobID string, upd history.Update, level events.Level, name, msg string, meta map[string]any) bool {
	lk := m.jobLock(jobID)
	lk.Lock()
	defer lk.Unlock()

	if err := m.history.UpdateJob(ctx, jobID, upd); err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) {
			m.logger.Info().Str("job_id", jobID).Str("step", name).Msg("pipeline: job already terminal, discarding step")
		} else {
			m.logger.Error().Err(err).Str("job_id", jobID).Str("step", name).Msg("pipeline: job update failed")
		}
		return false
	}
	m.event(jobID, level, name, msg, meta)
	return true
}

func (m *Manager) failJob(ctx context.Context, jobID string, p domain.WorkflowPreset, err error) {
	m.finishFailed(ctx, jobID, p, classify(err), err.Error())
}

func (m *Manager) finishFailed(ctx context.Context, jobID string, p domain.WorkflowPreset, code domain.ErrorCode, msg string) {
	m.step(ctx, jobID, history.Update{
		Status:      history.StatusPtr(domain.JobStatusFailed),
		Error:       history.StringPtr(msg),
		ErrorCode:   history.CodePtr(code),
		Remediation: p.Remediation(code),
	}, events.LevelError, "failed", msg, map[string]any{"error_code": string(code)})
}

// classify maps execution errors onto the failure taxonomy; an engine call
// that outlived its configured timeout counts as the engine being offline.
func classify(err error) domain.ErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.CodeEngineOffline
	}
	return domain.Classify(err)
}

func (m *Manager) event(jobID string, level events.Level, name, msg string, meta map[string]any) {
	if err := m.events.Append(jobID, level, name, msg, meta); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Str("event", name).Msg("pipeline: event append failed")
	}
}

func (m *Manager) jobLock(jobID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.locks[jobID]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[jobID] = lk
	}
	return lk
}

// signalDone releases Wait callers. Closing is idempotent per job because the
// entry is removed with the close.
func (m *Manager) signalDone(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.done[jobID]; ok {
		close(ch)
		delete(m.done, jobID)
	}
}

// validateRequest enforces the pre-job checks: executable category, required
// inputs present, and the consent gate for identity-bearing submissions.
func validateRequest(p domain.WorkflowPreset, req Request) error {
	if p.Category != domain.CategoryImageGeneration {
		return &domain.ValidationError{
			Reason: fmt.Sprintf("preset category %q is not executable by this service", p.Category),
		}
	}
	for name := range p.RequiredInputs {
		if _, ok := req.Inputs[name]; !ok {
			return domain.NewValidationError(name, "is required")
		}
	}
	if p.RequiresConsent && identityTouched(p, req.Inputs) && !consentGiven(req.Inputs) {
		return fmt.Errorf("pipeline: preset %q requires consent_given=true for identity inputs: %w",
			p.ID, domain.ErrConsentRequired)
	}
	return nil
}

func identityTouched(p domain.WorkflowPreset, inputs map[string]any) bool {
	for _, name := range p.IdentityInputNames() {
		if _, ok := inputs[name]; ok {
			return true
		}
	}
	return false
}

func consentGiven(inputs map[string]any) bool {
	v, ok := inputs["consent_given"].(bool)
	return ok && v
}

// buildGenerateRequest merges caller inputs with the resolved quality tier.
// Tier overrides win so quality levels stay enforceable; prompt, negative
// prompt, and seed are lifted out of the parameter map.
func buildGenerateRequest(job *domain.Job, p domain.WorkflowPreset) engine.GenerateRequest {
	_, tierParams := p.QualityParams(job.QualityLevel)

	params := make(map[string]any, len(job.Inputs)+len(tierParams))
	for k, v := range job.Inputs {
		params[k] = v
	}
	for k, v := range tierParams {
		params[k] = v
	}

	req := engine.GenerateRequest{JobID: job.ID, Params: params}
	if s, ok := params["prompt"].(string); ok {
		req.Prompt = s
	}
	if s, ok := params["negative_prompt"].(string); ok {
		req.NegativePrompt = s
	}
	req.Seed = seedParam(params)
	delete(params, "prompt")
	delete(params, "negative_prompt")
	delete(params, "seed")
	delete(params, "consent_given")
	return req
}

// seedParam tolerates both decoded-JSON and YAML numeric shapes.
func seedParam(params map[string]any) int64 {
	switch v := params["seed"].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
