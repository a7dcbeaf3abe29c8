package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pipeline/internal/artifact"
	"pipeline/internal/domain"
	"pipeline/internal/engine"
	"pipeline/internal/events"
	"pipeline/internal/history"
	"pipeline/internal/preset"
)

const portraitDoc = `
id: portrait
category: image_generation
required_inputs:
  prompt: text
engine_requirements: [local]
quality_levels:
  standard:
    steps: 20
  pro:
    steps: 50
    cfg_scale: 9.5
failure_modes:
  ENGINE_OFFLINE: Start the local engine and retry.
`

const avatarDoc = `
id: avatar
category: image_generation
required_inputs:
  prompt: text
  face_image: identity_reference
quality_levels:
  standard: {}
requires_consent: true
`

const stylizeDoc = `
id: stylize
category: image_generation
required_inputs:
  prompt: text
optional_inputs:
  face_image: identity_reference
quality_levels:
  standard: {}
requires_consent: true
`

const clipDoc = `
id: clip
category: video_generation
required_inputs:
  prompt: text
quality_levels:
  standard: {}
`

const ghostDoc = `
id: ghost
category: image_generation
required_inputs:
  prompt: text
engine_requirements: [phantom]
quality_levels:
  standard: {}
`

type stubAdapter struct {
	engine.UnsupportedCapabilities
	id      string
	healthy bool

	mu       sync.Mutex
	requests []engine.GenerateRequest
	generate func(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error)
}

func (a *stubAdapter) EngineID() string                      { return a.id }
func (a *stubAdapter) EngineType() domain.EngineType         { return domain.EngineTypeLocal }
func (a *stubAdapter) HealthCheck(ctx context.Context) bool  { return a.healthy }
func (a *stubAdapter) lastRequest() engine.GenerateRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[len(a.requests)-1]
}

func (a *stubAdapter) GenerateImage(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	return a.generate(ctx, req)
}

type testEnv struct {
	mgr       *Manager
	adapter   *stubAdapter
	history   *history.FileStore
	artifacts *artifact.Store
	events    *events.Log
	scratch   string
}

func newTestEnv(t *testing.T, docs map[string]string) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	presetDir := t.TempDir()
	for name, body := range docs {
		if err := os.WriteFile(filepath.Join(presetDir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write preset %s: %v", name, err)
		}
	}
	presets, err := preset.NewRegistry(presetDir, logger)
	if err != nil {
		t.Fatalf("preset registry: %v", err)
	}

	scratch := t.TempDir()
	adapter := &stubAdapter{id: "local", healthy: true}
	adapter.generate = func(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error) {
		path := filepath.Join(scratch, req.JobID+".png")
		if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
			return nil, err
		}
		return &engine.GenerateResult{OutputPath: path, Metadata: map[string]any{"seed": req.Seed}}, nil
	}
	engines := engine.NewRegistry()
	engines.Register(adapter)

	hist, err := history.NewFileStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("history store: %v", err)
	}
	artifacts, err := artifact.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	evlog, err := events.NewLog(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("event log: %v", err)
	}

	return &testEnv{
		mgr: NewManager(Options{
			Presets:   presets,
			Engines:   engines,
			History:   hist,
			Artifacts: artifacts,
			Events:    evlog,
			Logger:    logger,
		}),
		adapter:   adapter,
		history:   hist,
		artifacts: artifacts,
		events:    evlog,
		scratch:   scratch,
	}
}

func (env *testEnv) eventNames(t *testing.T, jobID string) []string {
	t.Helper()
	evs, err := env.events.Read(jobID)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	names := make([]string, len(evs))
	for i, e := range evs {
		names[i] = e.Event
	}
	return names
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	ctx := waitCtx(t)

	id, err := env.mgr.Submit(ctx, Request{
		PresetID:     "portrait",
		Inputs:       map[string]any{"prompt": "a red fox"},
		QualityLevel: "standard",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatal("Submit returned empty job id")
	}

	job, err := env.mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s (error %q)", job.Status, job.Error)
	}
	if job.Error != "" || job.ErrorCode != "" {
		t.Fatalf("completed job carries error %q %q", job.ErrorCode, job.Error)
	}
	if job.Outputs["image"] == "" {
		t.Fatalf("Outputs = %v, want image entry", job.Outputs)
	}
	if job.OutputURL != job.Outputs["image"] {
		t.Fatalf("OutputURL = %q, want %q", job.OutputURL, job.Outputs["image"])
	}
	if job.Progress != 100 {
		t.Fatalf("Progress = %d", job.Progress)
	}
	if job.StartedAt == nil || job.FinishedAt == nil {
		t.Fatal("terminal job missing timestamps")
	}

	arts := env.mgr.Artifacts(id)
	if len(arts) != 1 || arts[0].ArtifactType != domain.ArtifactImage {
		t.Fatalf("Artifacts = %+v", arts)
	}
	if arts[0].Metadata["preset_id"] != "portrait" {
		t.Fatalf("artifact metadata = %v", arts[0].Metadata)
	}
	if arts[0].Metadata["engine_id"] != "local" {
		t.Fatalf("artifact metadata = %v", arts[0].Metadata)
	}

	want := []string{"queued", "running", "generating", "generated", "artifact_saved", "completed"}
	got := env.eventNames(t, id)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	// The engine's scratch file is cleaned up after the copy into the store.
	if _, err := os.Stat(filepath.Join(env.scratch, id+".png")); !os.IsNotExist(err) {
		t.Fatalf("scratch file still present: %v", err)
	}
}

func TestSubmitRejectsMissingConsent(t *testing.T) {
	env := newTestEnv(t, map[string]string{"avatar.yaml": avatarDoc})
	ctx := waitCtx(t)

	_, err := env.mgr.Submit(ctx, Request{
		PresetID: "avatar",
		Inputs:   map[string]any{"prompt": "x", "face_image": "ref-123"},
	})
	if !errors.Is(err, domain.ErrConsentRequired) {
		t.Fatalf("Submit error = %v, want consent required", err)
	}

	jobs, err := env.history.ListJobs(ctx, history.ListFilter{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("job record written for rejected submission: %+v", jobs)
	}
}

func TestSubmitAcceptsExplicitConsent(t *testing.T) {
	env := newTestEnv(t, map[string]string{"avatar.yaml": avatarDoc})
	ctx := waitCtx(t)

	id, err := env.mgr.Submit(ctx, Request{
		PresetID: "avatar",
		Inputs:   map[string]any{"prompt": "x", "face_image": "ref-123", "consent_given": true},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := env.mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s (error %q)", job.Status, job.Error)
	}
}

func TestConsentNotRequiredWhenIdentityInputAbsent(t *testing.T) {
	env := newTestEnv(t, map[string]string{"stylize.yaml": stylizeDoc})
	ctx := waitCtx(t)

	if _, err := env.mgr.Submit(ctx, Request{
		PresetID: "stylize",
		Inputs:   map[string]any{"prompt": "x"},
	}); err != nil {
		t.Fatalf("Submit without identity input: %v", err)
	}
}

func TestUnhealthyEngineFailsJob(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	env.adapter.healthy = false
	ctx := waitCtx(t)

	id, err := env.mgr.Submit(ctx, Request{
		PresetID: "portrait",
		Inputs:   map[string]any{"prompt": "x"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job, err := env.mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if job.ErrorCode != domain.CodeEngineOffline {
		t.Fatalf("error_code = %s", job.ErrorCode)
	}
	if len(job.Outputs) != 0 {
		t.Fatalf("failed job carries outputs: %v", job.Outputs)
	}
	if len(job.Remediation) != 1 || job.Remediation[0] != "Start the local engine and retry." {
		t.Fatalf("remediation = %v, want the preset failure mode", job.Remediation)
	}
}

func TestSubmitRejectsMissingRequiredInput(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	ctx := waitCtx(t)

	_, err := env.mgr.Submit(ctx, Request{
		PresetID: "portrait",
		Inputs:   map[string]any{"negative_prompt": "blurry"},
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Submit error = %v, want validation error", err)
	}
	if verr.Field != "prompt" {
		t.Fatalf("Field = %q, want the missing input named", verr.Field)
	}

	jobs, _ := env.history.ListJobs(ctx, history.ListFilter{})
	if len(jobs) != 0 {
		t.Fatal("job record written for rejected submission")
	}
}

func TestSubmitRejectsUnknownPreset(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	_, err := env.mgr.Submit(waitCtx(t), Request{PresetID: "nope", Inputs: map[string]any{}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Submit error = %v, want not found", err)
	}
}

func TestSubmitRejectsNonImageCategory(t *testing.T) {
	env := newTestEnv(t, map[string]string{"clip.yaml": clipDoc})
	_, err := env.mgr.Submit(waitCtx(t), Request{
		PresetID: "clip",
		Inputs:   map[string]any{"prompt": "x"},
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Submit error = %v, want validation error", err)
	}
}

func TestUnknownEngineFailsJob(t *testing.T) {
	env := newTestEnv(t, map[string]string{"ghost.yaml": ghostDoc})
	ctx := waitCtx(t)

	id, err := env.mgr.Submit(ctx, Request{
		PresetID: "ghost",
		Inputs:   map[string]any{"prompt": "x"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := env.mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.Status != domain.JobStatusFailed || job.ErrorCode != domain.CodeEngineUnknown {
		t.Fatalf("job = %s %s", job.Status, job.ErrorCode)
	}
}

func TestGenerationFailureClassified(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	env.adapter.generate = func(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error) {
		return nil, fmt.Errorf("txt2img returned no images: %w", domain.ErrGenerationFailed)
	}
	ctx := waitCtx(t)

	id, _ := env.mgr.Submit(ctx, Request{PresetID: "portrait", Inputs: map[string]any{"prompt": "x"}})
	job, err := env.mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.ErrorCode != domain.CodeGenerationFailed {
		t.Fatalf("error_code = %s", job.ErrorCode)
	}
	if job.Error == "" {
		t.Fatal("failed job missing error text")
	}
}

func TestPanicInEngineFailsJob(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	env.adapter.generate = func(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error) {
		panic("adapter bug")
	}
	ctx := waitCtx(t)

	id, _ := env.mgr.Submit(ctx, Request{PresetID: "portrait", Inputs: map[string]any{"prompt": "x"}})
	job, err := env.mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.Status != domain.JobStatusFailed || job.ErrorCode != domain.CodeUnknown {
		t.Fatalf("job = %s %s", job.Status, job.ErrorCode)
	}
}

func TestQualityTierOverridesCallerParams(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	ctx := waitCtx(t)

	id, err := env.mgr.Submit(ctx, Request{
		PresetID:     "portrait",
		Inputs:       map[string]any{"prompt": "a red fox", "steps": 5, "seed": 42},
		QualityLevel: "pro",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := env.mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.QualityLevel != "pro" {
		t.Fatalf("QualityLevel = %q", job.QualityLevel)
	}

	req := env.adapter.lastRequest()
	if req.Prompt != "a red fox" {
		t.Fatalf("Prompt = %q", req.Prompt)
	}
	if req.Seed != 42 {
		t.Fatalf("Seed = %d", req.Seed)
	}
	if req.Params["steps"] != 50 {
		t.Fatalf("steps = %v, want the tier override", req.Params["steps"])
	}
	if req.Params["cfg_scale"] != 9.5 {
		t.Fatalf("cfg_scale = %v", req.Params["cfg_scale"])
	}
	if _, ok := req.Params["prompt"]; ok {
		t.Fatal("prompt left in the parameter map")
	}
}

func TestUnknownTierFallsBackToStandard(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	ctx := waitCtx(t)

	id, _ := env.mgr.Submit(ctx, Request{
		PresetID:     "portrait",
		Inputs:       map[string]any{"prompt": "x"},
		QualityLevel: "ultra",
	})
	job, err := env.mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.QualityLevel != domain.QualityStandard {
		t.Fatalf("QualityLevel = %q, want standard fallback", job.QualityLevel)
	}
	if got := env.adapter.lastRequest().Params["steps"]; got != 20 {
		t.Fatalf("steps = %v, want standard tier value", got)
	}
}

func TestCancelRunningJobWinsOverCompletion(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	started := make(chan struct{})
	release := make(chan struct{})
	env.adapter.generate = func(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error) {
		close(started)
		<-release
		path := filepath.Join(env.scratch, req.JobID+".png")
		if err := os.WriteFile(path, []byte("late"), 0o644); err != nil {
			return nil, err
		}
		return &engine.GenerateResult{OutputPath: path}, nil
	}
	ctx := waitCtx(t)

	id, err := env.mgr.Submit(ctx, Request{PresetID: "portrait", Inputs: map[string]any{"prompt": "x"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	if err := env.mgr.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	// Wait for the executor goroutine to drain, then verify its terminal
	// write was discarded.
	if err := env.mgr.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	job, err := env.mgr.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != domain.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled to win the race", job.Status)
	}
	if len(job.Outputs) != 0 || job.Error != "" {
		t.Fatalf("cancelled job carries outputs/error: %+v", job)
	}
	if job.FinishedAt == nil {
		t.Fatal("cancelled job missing finished_at")
	}

	names := env.eventNames(t, id)
	for _, n := range names {
		if n == "completed" {
			t.Fatalf("completed event emitted after cancel: %v", names)
		}
	}

	if err := env.mgr.Cancel(ctx, id); !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("second Cancel = %v, want already terminal", err)
	}
}

func TestCancelMissingJob(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	if err := env.mgr.Cancel(waitCtx(t), "ghost-id"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Cancel = %v, want not found", err)
	}
}

func TestConcurrentJobsProceedIndependently(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	var gate sync.WaitGroup
	gate.Add(2)
	env.adapter.generate = func(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error) {
		// Hold both jobs in the engine at once so their executions overlap.
		gate.Done()
		gate.Wait()
		path := filepath.Join(env.scratch, req.JobID+".png")
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			return nil, err
		}
		return &engine.GenerateResult{OutputPath: path}, nil
	}
	ctx := waitCtx(t)

	id1, err := env.mgr.Submit(ctx, Request{PresetID: "portrait", Inputs: map[string]any{"prompt": "one"}})
	if err != nil {
		t.Fatalf("Submit 1: %v", err)
	}
	id2, err := env.mgr.Submit(ctx, Request{PresetID: "portrait", Inputs: map[string]any{"prompt": "two"}})
	if err != nil {
		t.Fatalf("Submit 2: %v", err)
	}
	if id1 == id2 {
		t.Fatal("duplicate job ids")
	}

	for _, id := range []string{id1, id2} {
		job, err := env.mgr.Wait(ctx, id)
		if err != nil {
			t.Fatalf("Wait(%s): %v", id, err)
		}
		if job.Status != domain.JobStatusCompleted {
			t.Fatalf("job %s = %s (error %q)", id, job.Status, job.Error)
		}
		want := []string{"queued", "running", "generating", "generated", "artifact_saved", "completed"}
		got := env.eventNames(t, id)
		if len(got) != len(want) {
			t.Fatalf("job %s events = %v", id, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("job %s events = %v, want %v", id, got, want)
			}
		}
	}
}

func TestWaitHonorsContext(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	release := make(chan struct{})
	env.adapter.generate = func(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error) {
		<-release
		return nil, fmt.Errorf("aborted: %w", domain.ErrGenerationFailed)
	}

	id, err := env.mgr.Submit(context.Background(), Request{PresetID: "portrait", Inputs: map[string]any{"prompt": "x"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := env.mgr.Wait(ctx, id); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}

	// Drain the executor before the test tempdirs are removed.
	close(release)
	if err := env.mgr.Close(waitCtx(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSubmitAfterCloseRejected(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	ctx := waitCtx(t)
	if err := env.mgr.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := env.mgr.Submit(ctx, Request{PresetID: "portrait", Inputs: map[string]any{"prompt": "x"}}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit = %v, want ErrClosed", err)
	}
}

func TestRemoteOutputURLCompletesWithoutArtifactStore(t *testing.T) {
	env := newTestEnv(t, map[string]string{"portrait.yaml": portraitDoc})
	env.adapter.generate = func(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error) {
		return &engine.GenerateResult{OutputURL: "https://cdn.example.com/out.png"}, nil
	}
	ctx := waitCtx(t)

	id, _ := env.mgr.Submit(ctx, Request{PresetID: "portrait", Inputs: map[string]any{"prompt": "x"}})
	job, err := env.mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s", job.Status)
	}
	if job.OutputURL != "https://cdn.example.com/out.png" {
		t.Fatalf("OutputURL = %q", job.OutputURL)
	}
	if len(env.mgr.Artifacts(id)) != 0 {
		t.Fatal("artifact store written for a remote output")
	}
}
