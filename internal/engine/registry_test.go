package engine

import (
	"context"
	"testing"

	"pipeline/internal/domain"
)

type stubAdapter struct {
	UnsupportedCapabilities
	id      string
	kind    domain.EngineType
	healthy bool
	panics  bool
}

func (s *stubAdapter) EngineID() string              { return s.id }
func (s *stubAdapter) EngineType() domain.EngineType { return s.kind }

func (s *stubAdapter) HealthCheck(ctx context.Context) bool {
	if s.panics {
		panic("probe blew up")
	}
	return s.healthy
}

func (s *stubAdapter) GenerateImage(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	return &GenerateResult{OutputPath: "/tmp/out.png"}, nil
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{id: "local", kind: domain.EngineTypeLocal, healthy: true})

	if _, ok := r.Get("local"); !ok {
		t.Fatal("Get(local) not found")
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatal("Get(nope) found unexpected adapter")
	}
}

func TestRegistryListProbesHealth(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{id: "remote", kind: domain.EngineTypeRemote, healthy: false})
	r.Register(&stubAdapter{id: "local", kind: domain.EngineTypeLocal, healthy: true})

	got := r.List(context.Background())
	if len(got) != 2 {
		t.Fatalf("List returned %d descriptors, want 2", len(got))
	}
	// Sorted by engine id.
	if got[0].EngineID != "local" || got[1].EngineID != "remote" {
		t.Fatalf("List order = %s, %s", got[0].EngineID, got[1].EngineID)
	}
	if !got[0].Healthy || got[1].Healthy {
		t.Fatalf("health flags = %v, %v", got[0].Healthy, got[1].Healthy)
	}
}

func TestRegistryProbePanicCollapsesToUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{id: "flaky", kind: domain.EngineTypeLocal, panics: true})

	got := r.List(context.Background())
	if len(got) != 1 || got[0].Healthy {
		t.Fatalf("List = %+v, want single unhealthy entry", got)
	}
	if r.Available(context.Background(), "flaky") {
		t.Fatal("Available(flaky) = true, want false on panicking probe")
	}
}

func TestRegistryAvailable(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{id: "local", kind: domain.EngineTypeLocal, healthy: true})

	if !r.Available(context.Background(), "local") {
		t.Fatal("Available(local) = false, want true")
	}
	if r.Available(context.Background(), "missing") {
		t.Fatal("Available(missing) = true, want false")
	}
}

func TestUnsupportedCapabilitiesAreTyped(t *testing.T) {
	a := &stubAdapter{id: "local", kind: domain.EngineTypeLocal}

	_, err := a.GenerateVideo(context.Background(), GenerateRequest{})
	if !errorsIsCapability(err) {
		t.Fatalf("GenerateVideo err = %v, want ErrCapabilityUnsupported", err)
	}
	_, err = a.ApplyLipsync(context.Background(), LipsyncRequest{})
	if !errorsIsCapability(err) {
		t.Fatalf("ApplyLipsync err = %v, want ErrCapabilityUnsupported", err)
	}
	_, err = a.Upscale(context.Background(), UpscaleRequest{})
	if !errorsIsCapability(err) {
		t.Fatalf("Upscale err = %v, want ErrCapabilityUnsupported", err)
	}
}

func errorsIsCapability(err error) bool {
	return err != nil && domain.Classify(err) == domain.CodeGenerationFailed
}
