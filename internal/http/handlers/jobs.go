package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pipeline/internal/domain"
	"pipeline/internal/history"
	"pipeline/internal/middleware"
	"pipeline/internal/pipeline"
)

type submitJobRequest struct {
	PresetID     string         `json:"preset_id"`
	Inputs       map[string]any `json:"inputs"`
	QualityLevel string         `json:"quality_level"`
}

type submitJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, string(domain.CodeValidation), "invalid payload")
		return
	}
	if req.PresetID == "" {
		a.json(w, http.StatusBadRequest, apiError{
			Error: "preset_id is required",
			Code:  string(domain.CodeValidation),
			Field: "preset_id",
		})
		return
	}
	jobID, err := a.Manager.Submit(r.Context(), pipeline.Request{
		PresetID:     req.PresetID,
		Inputs:       req.Inputs,
		QualityLevel: req.QualityLevel,
		UserID:       middleware.UserIDFromContext(r.Context()),
	})
	if err != nil {
		a.submitError(w, req.PresetID, err)
		return
	}
	a.json(w, http.StatusAccepted, submitJobResponse{JobID: jobID, Status: string(domain.JobStatusQueued)})
}

// submitError maps a rejected submission onto the wire taxonomy.
func (a *App) submitError(w http.ResponseWriter, presetID string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		a.json(w, http.StatusBadRequest, apiError{
			Error: verr.Error(),
			Code:  string(domain.CodeValidation),
			Field: verr.Field,
		})
	case errors.Is(err, domain.ErrConsentRequired):
		a.json(w, http.StatusForbidden, apiError{
			Error:       "consent_given=true is required for identity reference inputs",
			Code:        string(domain.CodeConsentRequired),
			Remediation: a.remediation(presetID, domain.CodeConsentRequired),
		})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, string(domain.CodePresetNotFound), "preset not found: "+presetID)
	case errors.Is(err, pipeline.ErrClosed):
		a.error(w, http.StatusServiceUnavailable, "shutting_down", "service is shutting down")
	default:
		a.Logger.Error().Err(err).Str("preset_id", presetID).Msg("http: submit failed")
		a.error(w, http.StatusInternalServerError, string(domain.CodeUnknown), "failed to submit job")
	}
}

func (a *App) remediation(presetID string, code domain.ErrorCode) []string {
	p, ok := a.Presets.Get(presetID)
	if !ok {
		return nil
	}
	return p.Remediation(code)
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	f := history.ListFilter{Limit: defaultListLimit, PresetID: r.URL.Query().Get("preset_id")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			a.error(w, http.StatusBadRequest, string(domain.CodeValidation), "limit must be a positive integer")
			return
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		f.Limit = n
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.JobStatus(raw)
		if !s.Valid() {
			a.error(w, http.StatusBadRequest, string(domain.CodeValidation), "unknown status "+strconv.Quote(raw))
			return
		}
		f.Status = s
	}
	jobs, err := a.Manager.ListJobs(r.Context(), f)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: list jobs failed")
		a.error(w, http.StatusInternalServerError, string(domain.CodeUnknown), "failed to list jobs")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": jobs})
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, string(domain.CodeValidation), "job_id required")
		return
	}
	err := a.Manager.Cancel(r.Context(), jobID)
	switch {
	case err == nil:
		if job, getErr := a.Manager.GetJob(r.Context(), jobID); getErr == nil {
			a.json(w, http.StatusOK, job)
			return
		}
		a.json(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(domain.JobStatusCancelled)})
	case errors.Is(err, domain.ErrAlreadyTerminal):
		a.error(w, http.StatusConflict, "already_terminal", "job is already in a terminal state")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	default:
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: cancel failed")
		a.error(w, http.StatusInternalServerError, string(domain.CodeUnknown), "failed to cancel job")
	}
}

// loadJob resolves {job_id} or writes the error response and reports false.
func (a *App) loadJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, string(domain.CodeValidation), "job_id required")
		return nil, false
	}
	job, err := a.Manager.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		} else {
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: load job failed")
			a.error(w, http.StatusInternalServerError, string(domain.CodeUnknown), "failed to load job")
		}
		return nil, false
	}
	return job, true
}
