package history

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"pipeline/internal/domain"
	"pipeline/internal/sqlinline"
)

// stubExecutor records executed statements and plays back canned responses.
type stubExecutor struct {
	execs    []executedQuery
	execTag  pgconn.CommandTag
	execErr  error
	rowScan  func(dest ...any) error
	queryErr error
}

type executedQuery struct {
	query string
	args  []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, executedQuery{query: query, args: args})
	return s.execTag, s.execErr
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.execs = append(s.execs, executedQuery{query: query, args: args})
	return stubRow{scan: s.rowScan}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.execs = append(s.execs, executedQuery{query: query, args: args})
	return nil, s.queryErr
}

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

func TestNewPostgresStoreEnsuresSchema(t *testing.T) {
	db := &stubExecutor{execTag: pgconn.NewCommandTag("CREATE TABLE")}
	if _, err := NewPostgresStore(context.Background(), db, zerolog.Nop()); err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	if len(db.execs) != 1 || db.execs[0].query != sqlinline.QJobsEnsureSchema {
		t.Fatalf("schema statement not executed: %+v", db.execs)
	}
}

func TestSaveJobRedactsBeforeInsert(t *testing.T) {
	db := &stubExecutor{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	s := &PostgresStore{db: db, logger: zerolog.Nop()}

	job := &domain.Job{
		ID:        "j1",
		PresetID:  "portrait",
		Status:    domain.JobStatusQueued,
		Inputs:    map[string]any{"prompt": "fox", "api_token": "secret"},
		CreatedAt: time.Now(),
	}
	if err := s.SaveJob(context.Background(), job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	if len(db.execs) != 1 {
		t.Fatalf("exec count = %d", len(db.execs))
	}
	inputs, ok := db.execs[0].args[5].([]byte)
	if !ok {
		t.Fatalf("inputs arg type = %T", db.execs[0].args[5])
	}
	var decoded map[string]any
	if err := json.Unmarshal(inputs, &decoded); err != nil {
		t.Fatalf("decode inputs arg: %v", err)
	}
	if decoded["api_token"] != "[REDACTED]" {
		t.Fatalf("inserted token = %v, want redacted", decoded["api_token"])
	}
	if decoded["prompt"] != "fox" {
		t.Fatalf("inserted prompt = %v", decoded["prompt"])
	}
}

func TestGetJobNoRowsIsNotFound(t *testing.T) {
	db := &stubExecutor{}
	s := &PostgresStore{db: db, logger: zerolog.Nop()}

	_, err := s.GetJob(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateJobZeroRowsDisambiguation(t *testing.T) {
	// Zero rows affected with an existing terminal row means the terminal
	// guard in the statement refused the write.
	db := &stubExecutor{
		execTag: pgconn.NewCommandTag("UPDATE 0"),
		rowScan: func(dest ...any) error {
			*(dest[0].(*string)) = "j1"                               // job_id
			*(dest[1].(*string)) = "portrait"                         // preset_id
			*(dest[2].(*string)) = ""                                 // user_id
			*(dest[3].(*string)) = string(domain.JobStatusCompleted)  // status
			*(dest[4].(*string)) = "standard"                         // quality_level
			*(dest[5].(*[]byte)) = []byte(`{}`)                       // inputs
			*(dest[6].(*[]byte)) = []byte(`{"image":"j1/image/a"}`)   // outputs
			*(dest[7].(*string)) = "j1/image/a"                       // output_url
			*(dest[8].(*int)) = 100                                   // progress
			*(dest[9].(*string)) = ""                                 // error
			*(dest[10].(*string)) = ""                                // error_code
			*(dest[11].(*[]byte)) = []byte(`[]`)                      // remediation
			*(dest[12].(*time.Time)) = time.Now()                     // created_at
			return nil
		},
	}
	s := &PostgresStore{db: db, logger: zerolog.Nop()}

	err := s.UpdateJob(context.Background(), "j1", Update{Status: StatusPtr(domain.JobStatusCancelled)})
	if !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("err = %v, want ErrAlreadyTerminal", err)
	}
}

func TestUpdateJobZeroRowsMissingJob(t *testing.T) {
	db := &stubExecutor{execTag: pgconn.NewCommandTag("UPDATE 0")}
	s := &PostgresStore{db: db, logger: zerolog.Nop()}

	err := s.UpdateJob(context.Background(), "missing", Update{Progress: ProgressPtr(10)})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateJobSendsNilForOmittedFields(t *testing.T) {
	db := &stubExecutor{execTag: pgconn.NewCommandTag("UPDATE 1")}
	s := &PostgresStore{db: db, logger: zerolog.Nop()}

	if err := s.UpdateJob(context.Background(), "j1", Update{Progress: ProgressPtr(40)}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	args := db.execs[0].args
	if !strings.Contains(db.execs[0].query, "update pipeline_jobs") {
		t.Fatalf("unexpected query: %s", db.execs[0].query)
	}
	if args[1] != (*string)(nil) {
		t.Fatalf("status arg = %#v, want typed nil", args[1])
	}
	if p, ok := args[2].(*int); !ok || *p != 40 {
		t.Fatalf("progress arg = %#v", args[2])
	}
}
