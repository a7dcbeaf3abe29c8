package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
	"pipeline/internal/redact"
	"pipeline/internal/sqlinline"
)

// PostgresStore implements Store on a pipeline_jobs table. It is selected
// when DATABASE_URL is configured; the on-disk layout contract of the file
// store is traded for a shared database, which deployments opting in accept.
type PostgresStore struct {
	db     infra.SQLExecutor
	logger infra.Logger
}

// NewPostgresStore ensures the schema exists and returns the store.
func NewPostgresStore(ctx context.Context, db infra.SQLExecutor, logger infra.Logger) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, sqlinline.QJobsEnsureSchema); err != nil {
		return nil, fmt.Errorf("history: ensure schema: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// SaveJob upserts the full job row, redacting inputs first.
func (s *PostgresStore) SaveJob(ctx context.Context, job *domain.Job) error {
	inputs, err := json.Marshal(redact.Map(job.Inputs))
	if err != nil {
		return fmt.Errorf("history: encode inputs: %w", err)
	}
	outputs, err := json.Marshal(orEmptyMap(job.Outputs))
	if err != nil {
		return fmt.Errorf("history: encode outputs: %w", err)
	}
	remediation, err := json.Marshal(orEmptySlice(job.Remediation))
	if err != nil {
		return fmt.Errorf("history: encode remediation: %w", err)
	}

	_, err = s.db.Exec(ctx, sqlinline.QJobsInsert,
		job.ID,
		job.PresetID,
		job.UserID,
		string(job.Status),
		job.QualityLevel,
		inputs,
		outputs,
		job.OutputURL,
		job.Progress,
		job.Error,
		string(job.ErrorCode),
		remediation,
		job.CreatedAt,
		job.StartedAt,
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("history: save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob reads one job row.
func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, sqlinline.QJobsGet, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("history: job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("history: get job %s: %w", jobID, err)
	}
	return job, nil
}

// UpdateJob applies the provided fields. The statement refuses to touch rows
// already in a terminal state; zero rows affected is disambiguated by a read.
func (s *PostgresStore) UpdateJob(ctx context.Context, jobID string, upd Update) error {
	var status *string
	if upd.Status != nil {
		v := string(*upd.Status)
		status = &v
	}
	var errCode *string
	if upd.ErrorCode != nil {
		v := string(*upd.ErrorCode)
		errCode = &v
	}
	var remediation []byte
	if upd.Remediation != nil {
		raw, err := json.Marshal(upd.Remediation)
		if err != nil {
			return fmt.Errorf("history: encode remediation: %w", err)
		}
		remediation = raw
	}
	var outputs []byte
	if upd.Outputs != nil {
		raw, err := json.Marshal(upd.Outputs)
		if err != nil {
			return fmt.Errorf("history: encode outputs: %w", err)
		}
		outputs = raw
	}

	tag, err := s.db.Exec(ctx, sqlinline.QJobsUpdate,
		jobID,
		status,
		upd.Progress,
		upd.Error,
		errCode,
		remediation,
		outputs,
		upd.OutputURL,
	)
	if err != nil {
		return fmt.Errorf("history: update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	existing, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if existing.Status.Terminal() {
		return fmt.Errorf("history: job %s: %w", jobID, domain.ErrAlreadyTerminal)
	}
	return fmt.Errorf("history: update job %s affected no rows", jobID)
}

// ListJobs returns rows sorted by created_at descending, filtered before the
// limit is applied in SQL.
func (s *PostgresStore) ListJobs(ctx context.Context, f ListFilter) ([]*domain.Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.Query(ctx, sqlinline.QJobsList, string(f.Status), f.PresetID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			s.logger.Warn().Err(err).Msg("history: skipping unreadable row")
			continue
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job         domain.Job
		status      string
		errCode     string
		inputs      []byte
		outputs     []byte
		remediation []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.PresetID,
		&job.UserID,
		&status,
		&job.QualityLevel,
		&inputs,
		&outputs,
		&job.OutputURL,
		&job.Progress,
		&job.Error,
		&errCode,
		&remediation,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.ErrorCode = domain.ErrorCode(errCode)
	if len(inputs) > 0 {
		if err := json.Unmarshal(inputs, &job.Inputs); err != nil {
			return nil, fmt.Errorf("decode inputs: %w", err)
		}
	}
	if len(outputs) > 0 {
		var out map[string]string
		if err := json.Unmarshal(outputs, &out); err != nil {
			return nil, fmt.Errorf("decode outputs: %w", err)
		}
		if len(out) > 0 {
			job.Outputs = out
		}
	}
	if len(remediation) > 0 {
		var rem []string
		if err := json.Unmarshal(remediation, &rem); err != nil {
			return nil, fmt.Errorf("decode remediation: %w", err)
		}
		if len(rem) > 0 {
			job.Remediation = rem
		}
	}
	return &job, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
