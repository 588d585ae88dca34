package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"genqueue/internal/domain"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type call struct {
	query string
	args  []any
}

type stubExecutor struct {
	calls    []call
	tag      pgconn.CommandTag
	execErr  error
	row      pgx.Row
	rows     []pgx.Row
	queryErr error
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, call{query: query, args: args})
	return s.tag, s.execErr
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, call{query: query, args: args})
	if len(s.rows) > 0 {
		row := s.rows[0]
		s.rows = s.rows[1:]
		return row
	}
	if s.row == nil {
		return stubRow{}
	}
	return s.row
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.calls = append(s.calls, call{query: query, args: args})
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return nil, fmt.Errorf("unsupported query: %s", query)
}

func jobRow(kind string, params, result []byte) stubRow {
	now := time.Now()
	return stubRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "5b0f7b8e-2a52-4c1b-9a0e-3f1f0f3c6c11"
		*dest[1].(*string) = "user-1"
		*dest[2].(*string) = "video_generation"
		*dest[3].(*string) = kind
		*dest[4].(*string) = "completed"
		*dest[5].(*string) = "a sunset"
		*dest[6].(*[]byte) = params
		*dest[7].(*string) = "pred-1"
		*dest[8].(*[]byte) = result
		*dest[9].(*string) = "https://cdn.example.com/a.mp4"
		*dest[10].(*string) = ""
		*dest[11].(*int) = 1
		*dest[13].(*time.Time) = now
		*dest[14].(*time.Time) = now
		return nil
	}}
}

func TestCreateJobEncodesParameters(t *testing.T) {
	now := time.Now()
	exec := &stubExecutor{row: stubRow{scan: func(dest ...any) error {
		*dest[0].(*time.Time) = now
		*dest[1].(*time.Time) = now
		return nil
	}}}
	repo := NewJobRepository(exec)
	job := &domain.Job{
		UserID:          "user-1",
		Type:            domain.JobTypeVideoGeneration,
		Kind:            domain.JobKindLipSync,
		Prompt:          "sing",
		InputParameters: domain.JobKindLipSync.AliasFlags(),
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if job.ID == "" || job.Status != domain.JobStatusPending || !job.CreatedAt.Equal(now) {
		t.Fatalf("job not populated: %+v", job)
	}
	args := exec.calls[0].args
	if args[3] != "lip_sync" {
		t.Fatalf("kind arg = %v, want lip_sync", args[3])
	}
	var params map[string]any
	if err := json.Unmarshal(args[5].([]byte), &params); err != nil {
		t.Fatalf("params not json: %v", err)
	}
	if params["is_lip_sync"] != true {
		t.Fatalf("params = %v", params)
	}
}

func TestGetByIDRejectsMalformedID(t *testing.T) {
	exec := &stubExecutor{}
	if _, err := NewJobRepository(exec).GetByID(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("expected no query for malformed id")
	}
}

func TestGetByIDMapsNoRows(t *testing.T) {
	exec := &stubExecutor{}
	_, err := NewJobRepository(exec).GetByID(context.Background(), "5b0f7b8e-2a52-4c1b-9a0e-3f1f0f3c6c11")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestScanJobDecodesResultAndKind(t *testing.T) {
	result := []byte(`{"urls":["https://cdn.example.com/a.mp4"],"predicted":1}`)
	exec := &stubExecutor{row: jobRow("lip_sync", []byte(`{}`), result)}
	job, err := NewJobRepository(exec).GetByID(context.Background(), "5b0f7b8e-2a52-4c1b-9a0e-3f1f0f3c6c11")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if job.Kind != domain.JobKindLipSync {
		t.Fatalf("Kind = %q, want lip_sync", job.Kind)
	}
	if job.ResultData == nil || len(job.ResultData.URLs) != 1 || job.ResultData.Predicted != 1 {
		t.Fatalf("ResultData = %+v", job.ResultData)
	}
}

func TestScanJobFallsBackToAliasFlags(t *testing.T) {
	exec := &stubExecutor{row: jobRow("", []byte(`{"is_lip_sync":true}`), nil)}
	job, err := NewJobRepository(exec).GetByID(context.Background(), "5b0f7b8e-2a52-4c1b-9a0e-3f1f0f3c6c11")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if job.Kind != domain.JobKindLipSync {
		t.Fatalf("Kind = %q, want lip_sync", job.Kind)
	}
	if job.ResultData != nil {
		t.Fatalf("ResultData = %+v, want nil", job.ResultData)
	}
}

func TestConditionalUpdatesReportNoop(t *testing.T) {
	exec := &stubExecutor{tag: pgconn.NewCommandTag("UPDATE 0")}
	repo := NewJobRepository(exec)
	ctx := context.Background()

	if err := repo.MarkProcessing(ctx, "job", "pred"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("MarkProcessing err = %v", err)
	}
	if err := repo.Complete(ctx, "job", domain.JobResult{}, "", 1); !errors.Is(err, domain.ErrJobTerminal) {
		t.Fatalf("Complete err = %v", err)
	}
	if err := repo.Fail(ctx, "job", "boom"); !errors.Is(err, domain.ErrJobTerminal) {
		t.Fatalf("Fail err = %v", err)
	}

	exec.tag = pgconn.NewCommandTag("UPDATE 1")
	if err := repo.Fail(ctx, "job", "boom"); err != nil {
		t.Fatalf("Fail err = %v, want nil", err)
	}
}

func TestClaimPendingPassesLeaseSeconds(t *testing.T) {
	exec := &stubExecutor{}
	_, err := NewJobRepository(exec).ClaimPending(context.Background(), 15*time.Minute)
	if !errors.Is(err, domain.ErrNoJobAvailable) {
		t.Fatalf("err = %v, want ErrNoJobAvailable", err)
	}
	if got := exec.calls[0].args[0]; got != float64(900) {
		t.Fatalf("lease arg = %v, want 900", got)
	}
	if !strings.Contains(exec.calls[0].query, "skip locked") {
		t.Fatalf("claim query must skip locked rows")
	}
}

func withStatus(row stubRow, status string) stubRow {
	return stubRow{scan: func(dest ...any) error {
		if err := row.scan(dest...); err != nil {
			return err
		}
		*dest[4].(*string) = status
		return nil
	}}
}

func TestClaimByIDClassifiesUnclaimableJobs(t *testing.T) {
	const id = "5b0f7b8e-2a52-4c1b-9a0e-3f1f0f3c6c11"
	tests := []struct {
		name   string
		status string
		want   error
	}{
		{"leased elsewhere", "pending", domain.ErrJobClaimed},
		{"already running", "processing", domain.ErrInvalidTransition},
		{"finished", "completed", domain.ErrInvalidTransition},
	}
	for _, tc := range tests {
		exec := &stubExecutor{rows: []pgx.Row{stubRow{}, withStatus(jobRow("image_generation", []byte(`{}`), nil), tc.status)}}
		_, err := NewJobRepository(exec).ClaimByID(context.Background(), id, 10*time.Minute)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
		claim := exec.calls[0]
		if claim.args[0] != id || claim.args[1] != float64(600) {
			t.Fatalf("%s: claim args = %v", tc.name, claim.args)
		}
		if !strings.Contains(claim.query, "status = 'pending'") {
			t.Fatalf("%s: claim must be conditional on pending", tc.name)
		}
	}
}

func TestClaimByIDReturnsLeasedJob(t *testing.T) {
	exec := &stubExecutor{row: withStatus(jobRow("image_generation", []byte(`{}`), nil), "pending")}
	job, err := NewJobRepository(exec).ClaimByID(context.Background(), "5b0f7b8e-2a52-4c1b-9a0e-3f1f0f3c6c11", time.Minute)
	if err != nil {
		t.Fatalf("ClaimByID returned error: %v", err)
	}
	if job.Status != domain.JobStatusPending || len(exec.calls) != 1 {
		t.Fatalf("status = %s calls = %d", job.Status, len(exec.calls))
	}
}

func TestMediaCreateDetectsDuplicate(t *testing.T) {
	exec := &stubExecutor{}
	item := &domain.MediaItem{UserID: "user-1", JobID: "job-1", Kind: domain.MediaKindImage, SourceURL: "https://x/y.png"}
	if err := NewMediaRepository(exec).Create(context.Background(), item); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
	if item.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
}

func TestMediaDeleteMissingRow(t *testing.T) {
	exec := &stubExecutor{tag: pgconn.NewCommandTag("DELETE 0")}
	err := NewMediaRepository(exec).Delete(context.Background(), "user-1", domain.MediaKindVideo, "5b0f7b8e-2a52-4c1b-9a0e-3f1f0f3c6c11")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
