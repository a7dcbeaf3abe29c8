// Package handlers implements the REST surface over the pipeline manager.
package handlers

import (
	"encoding/json"
	"net/http"

	"pipeline/internal/artifact"
	"pipeline/internal/engine"
	"pipeline/internal/events"
	"pipeline/internal/infra"
	"pipeline/internal/pipeline"
	"pipeline/internal/preset"
)

// App carries the wired subsystems behind the HTTP handlers.
type App struct {
	Manager   *pipeline.Manager
	Presets   *preset.Registry
	Engines   *engine.Registry
	Artifacts *artifact.Store
	Events    *events.Log
	Logger    infra.Logger
}

// apiError is the uniform error body. Code is stable; Error is advisory.
type apiError struct {
	Error       string   `json:"error"`
	Code        string   `json:"code"`
	Field       string   `json:"field,omitempty"`
	Remediation []string `json:"remediation,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, apiError{Error: message, Code: code})
}
