package infra

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "")
	t.Setenv("PORT", "")
	t.Setenv("PRESET_DIR", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.JobsDir != filepath.Join("./data", "jobs") {
		t.Fatalf("JobsDir = %q", cfg.JobsDir)
	}
	if cfg.ArtifactsDir != filepath.Join("./data", "artifacts") {
		t.Fatalf("ArtifactsDir = %q", cfg.ArtifactsDir)
	}
	if cfg.EventsDir != filepath.Join("./data", "events") {
		t.Fatalf("EventsDir = %q", cfg.EventsDir)
	}
	if cfg.DefaultEngine != "local" {
		t.Fatalf("DefaultEngine = %q, want local", cfg.DefaultEngine)
	}
	if cfg.EngineTimeout != 0 {
		t.Fatalf("EngineTimeout = %v, want 0 (unbounded)", cfg.EngineTimeout)
	}
}

func TestLoadConfigDataDirDerivesStoreDirs(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/pipeline")
	t.Setenv("JOBS_DIR", "")
	t.Setenv("ARTIFACTS_DIR", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JobsDir != filepath.Join("/var/lib/pipeline", "jobs") {
		t.Fatalf("JobsDir = %q", cfg.JobsDir)
	}
	if cfg.ArtifactsDir != filepath.Join("/var/lib/pipeline", "artifacts") {
		t.Fatalf("ArtifactsDir = %q", cfg.ArtifactsDir)
	}
}

func TestLoadConfigExplicitDirsWin(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/pipeline")
	t.Setenv("JOBS_DIR", "/mnt/jobs")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JobsDir != "/mnt/jobs" {
		t.Fatalf("JobsDir = %q, want /mnt/jobs", cfg.JobsDir)
	}
	if cfg.ArtifactsDir != filepath.Join("/var/lib/pipeline", "artifacts") {
		t.Fatalf("ArtifactsDir = %q", cfg.ArtifactsDir)
	}
}

func TestLoadConfigEngineTimeout(t *testing.T) {
	t.Setenv("ENGINE_TIMEOUT_SECONDS", "45")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.EngineTimeout != 45*time.Second {
		t.Fatalf("EngineTimeout = %v, want 45s", cfg.EngineTimeout)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("PRESET_WATCH", "true")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.WatchPresets {
		t.Fatal("WatchPresets = false, want true")
	}

	t.Setenv("PRESET_WATCH", "not-a-bool")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.WatchPresets {
		t.Fatal("WatchPresets = true for malformed value, want default false")
	}
}
