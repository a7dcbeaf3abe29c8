package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal jobs never change again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a forward transition.
// queued may move to running or straight to a terminal state; running only to terminal.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning || next.Terminal()
	case JobStatusRunning:
		return next.Terminal()
	}
	return false
}

// Job tracks one generation request through its lifecycle. Inputs are stored
// redacted; StartedAt and FinishedAt are set once and never overwritten.
type Job struct {
	ID           string            `json:"job_id"`
	PresetID     string            `json:"preset_id"`
	UserID       string            `json:"user_id,omitempty"`
	Status       JobStatus         `json:"status"`
	QualityLevel string            `json:"quality_level"`
	Inputs       map[string]any    `json:"inputs"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	OutputURL    string            `json:"output_url,omitempty"`
	Progress     int               `json:"progress"`
	Error        string            `json:"error,omitempty"`
	ErrorCode    ErrorCode         `json:"error_code,omitempty"`
	Remediation  []string          `json:"remediation,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

// Clone returns a deep copy so jobs can cross goroutine boundaries safely.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Inputs != nil {
		cp.Inputs = make(map[string]any, len(j.Inputs))
		for k, v := range j.Inputs {
			cp.Inputs[k] = v
		}
	}
	if j.Outputs != nil {
		cp.Outputs = make(map[string]string, len(j.Outputs))
		for k, v := range j.Outputs {
			cp.Outputs[k] = v
		}
	}
	if j.Remediation != nil {
		cp.Remediation = append([]string(nil), j.Remediation...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
