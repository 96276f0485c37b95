package storage

import (
	"time"

	"github.com/google/uuid"
)

// Run statuses persisted in the ledger.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
)

// RunRecord is the ledger entry written after every transform run.
type RunRecord struct {
	ID          uuid.UUID
	StartedAt   time.Time
	FinishedAt  time.Time
	RawRoot     string
	FilesTotal  int
	FilesFailed int
	RowsWritten int
	Skipped     []string
	Status      string
	Error       *string
}

// Duration is the wall time of the run.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
