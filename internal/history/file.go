package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
	"pipeline/internal/redact"
)

// FileStore persists one JSON document per job under a jobs root.
type FileStore struct {
	root   string
	logger infra.Logger

	// mu serializes read-modify-write cycles; per-job ordering is already
	// guaranteed by the orchestrator, this guards cross-job directory scans.
	mu sync.Mutex
}

// NewFileStore initializes the store root, creating it when absent.
func NewFileStore(root string, logger infra.Logger) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("history: jobs root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("history: ensure jobs root: %w", err)
	}
	return &FileStore{root: root, logger: logger}, nil
}

// SaveJob writes the full job document, redacting inputs first.
func (s *FileStore) SaveJob(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.jobPath(job.ID)
	if err != nil {
		return err
	}

	record := job.Clone()
	record.Inputs = redact.Map(record.Inputs)

	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode job %s: %w", job.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("history: write job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob reads one job document. Corrupt records degrade to ErrNotFound.
func (s *FileStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readJob(jobID)
}

// UpdateJob applies the provided fields with set-once timestamps. Updates
// against a terminal job report ErrAlreadyTerminal.
func (s *FileStore) UpdateJob(ctx context.Context, jobID string, upd Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.readJob(jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("history: job %s: %w", jobID, domain.ErrAlreadyTerminal)
	}

	now := time.Now().UTC()
	if upd.Status != nil {
		job.Status = *upd.Status
		if *upd.Status == domain.JobStatusRunning && job.StartedAt == nil {
			job.StartedAt = &now
		}
		if upd.Status.Terminal() && job.FinishedAt == nil {
			job.FinishedAt = &now
		}
	}
	if upd.Progress != nil {
		job.Progress = *upd.Progress
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	if upd.ErrorCode != nil {
		job.ErrorCode = *upd.ErrorCode
	}
	if upd.Remediation != nil {
		job.Remediation = upd.Remediation
	}
	if upd.Outputs != nil {
		job.Outputs = upd.Outputs
	}
	if upd.OutputURL != nil {
		job.OutputURL = *upd.OutputURL
	}

	path, err := s.jobPath(jobID)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode job %s: %w", jobID, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("history: write job %s: %w", jobID, err)
	}
	return nil
}

// ListJobs scans the jobs root, filters, sorts by created_at descending and
// truncates to the limit. Corrupt documents are skipped with a warning.
func (s *FileStore) ListJobs(ctx context.Context, f ListFilter) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("history: read jobs root: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		job, err := s.readJob(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue // already logged by readJob
		}
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		if f.PresetID != "" && job.PresetID != f.PresetID {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if f.Limit > 0 && len(jobs) > f.Limit {
		jobs = jobs[:f.Limit]
	}
	return jobs, nil
}

func (s *FileStore) readJob(jobID string) (*domain.Job, error) {
	path, err := s.jobPath(jobID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("history: job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("history: read job %s: %w", jobID, err)
	}
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("history: corrupt job document, treating as absent")
		return nil, fmt.Errorf("history: job %s: %w", jobID, domain.ErrNotFound)
	}
	return &job, nil
}

func (s *FileStore) jobPath(jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", errors.New("history: job id is required")
	}
	if strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("history: invalid job id %q", jobID)
	}
	return filepath.Join(s.root, jobID+".json"), nil
}
