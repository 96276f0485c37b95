package pipeline

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"finance-etl/internal/alerting"
	"finance-etl/internal/storage"
	"finance-etl/internal/transform"
)

// Report summarises one transform run.
type Report struct {
	RunID       uuid.UUID
	RawRoot     string
	StartedAt   time.Time
	FinishedAt  time.Time
	Files       int
	Succeeded   int
	RowsWritten int
	Failures    []*transform.FileError
	// Skipped lists raw subdirectories that map to no known domain.
	Skipped []string
}

func newReport(rawRoot string, now time.Time) *Report {
	return &Report{RunID: uuid.New(), RawRoot: rawRoot, StartedAt: now}
}

// Status classifies the run from its file outcomes.
func (r *Report) Status() string {
	switch {
	case len(r.Failures) == 0:
		return storage.RunStatusSucceeded
	case r.Succeeded == 0:
		return storage.RunStatusFailed
	default:
		return storage.RunStatusPartial
	}
}

// Record converts the report into a ledger entry. A run that stopped early
// (fail-fast or cancellation) is recorded as failed regardless of its files.
func (r *Report) Record(runErr error) storage.RunRecord {
	status := r.Status()
	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
		if !errors.Is(runErr, ErrRunFailed) {
			status = storage.RunStatusFailed
		}
	}

	return storage.RunRecord{
		ID:          r.RunID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		RawRoot:     r.RawRoot,
		FilesTotal:  r.Files,
		FilesFailed: len(r.Failures),
		RowsWritten: r.RowsWritten,
		Skipped:     r.Skipped,
		Status:      status,
		Error:       msg,
	}
}

func (r *Report) notification(channels []string) alerting.Notification {
	failures := make([]alerting.Failure, 0, len(r.Failures))
	for _, f := range r.Failures {
		failures = append(failures, alerting.Failure{
			Domain: string(f.Domain),
			Path:   f.Path,
			Entity: f.Entity,
			Error:  f.Err.Error(),
		})
	}
	return alerting.Notification{
		RunID:       r.RunID.String(),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		RawRoot:     r.RawRoot,
		FilesTotal:  r.Files,
		FilesFailed: len(r.Failures),
		Failures:    failures,
		Channels:    channels,
	}
}
