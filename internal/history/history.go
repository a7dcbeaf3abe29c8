// Package history is the authoritative record of job lifecycle. Two backends
// implement the same contract: a file store (one JSON document per job) and a
// Postgres store selected when a database URL is configured.
package history

import (
	"context"

	"pipeline/internal/domain"
)

// Update carries the fields an update applies. Nil fields are left untouched.
// Remediation and Outputs apply when non-nil.
type Update struct {
	Status      *domain.JobStatus
	Progress    *int
	Error       *string
	ErrorCode   *domain.ErrorCode
	Remediation []string
	Outputs     map[string]string
	OutputURL   *string
}

// ListFilter narrows ListJobs. Limit <= 0 means no truncation. Filters apply
// before the limit.
type ListFilter struct {
	Limit    int
	Status   domain.JobStatus
	PresetID string
}

// Store is the job history contract.
//
// SaveJob passes inputs through secret redaction before persisting. GetJob
// degrades corrupt records to domain.ErrNotFound. UpdateJob applies only the
// provided fields, sets started_at on the first transition into running and
// finished_at on the first transition into a terminal state (both set-once),
// and reports domain.ErrAlreadyTerminal for any update against a terminal
// job. ListJobs returns jobs sorted by created_at descending.
type Store interface {
	SaveJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	UpdateJob(ctx context.Context, jobID string, upd Update) error
	ListJobs(ctx context.Context, f ListFilter) ([]*domain.Job, error)
}

// StatusPtr, ProgressPtr and friends cut the noise of building Updates.
func StatusPtr(s domain.JobStatus) *domain.JobStatus { return &s }
func ProgressPtr(p int) *int                         { return &p }
func StringPtr(s string) *string                     { return &s }
func CodePtr(c domain.ErrorCode) *domain.ErrorCode   { return &c }
