package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createRunsTableSQL = `CREATE TABLE IF NOT EXISTS transform_runs (
        run_id       UUID PRIMARY KEY,
        started_at   TIMESTAMPTZ NOT NULL,
        finished_at  TIMESTAMPTZ NOT NULL,
        raw_root     TEXT NOT NULL,
        files_total  INTEGER NOT NULL,
        files_failed INTEGER NOT NULL,
        rows_written INTEGER NOT NULL,
        skipped      TEXT[] NOT NULL DEFAULT '{}',
        status       TEXT NOT NULL,
        error        TEXT,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertRunSQL = `INSERT INTO transform_runs (
        run_id,
        started_at,
        finished_at,
        raw_root,
        files_total,
        files_failed,
        rows_written,
        skipped,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (run_id) DO UPDATE
    SET
        finished_at  = EXCLUDED.finished_at,
        files_total  = EXCLUDED.files_total,
        files_failed = EXCLUDED.files_failed,
        rows_written = EXCLUDED.rows_written,
        skipped      = EXCLUDED.skipped,
        status       = EXCLUDED.status,
        error        = EXCLUDED.error;`

	listRecentRunsSQL = `SELECT
        run_id::text,
        started_at,
        finished_at,
        raw_root,
        files_total,
        files_failed,
        rows_written,
        skipped,
        status,
        error
    FROM transform_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RunRecorder persists transform run outcomes.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// RunLister reads back the run ledger.
type RunLister interface {
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store backs the run ledger and the cross-process run lock with PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the ledger table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createRunsTableSQL); err != nil {
		return fmt.Errorf("create transform_runs: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
// The lock is session scoped, so the acquiring connection is held until unlock.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort: the session lock also goes away with the connection
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// RecordRun inserts or updates a ledger entry.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if run.Error != nil {
		errMsg = *run.Error
	}
	skipped := run.Skipped
	if skipped == nil {
		skipped = []string{}
	}

	_, execErr := pool.Exec(ctx, upsertRunSQL,
		run.ID.String(),
		run.StartedAt,
		run.FinishedAt,
		run.RawRoot,
		run.FilesTotal,
		run.FilesFailed,
		run.RowsWritten,
		skipped,
		run.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert transform run: %w", execErr)
	}
	return nil
}

// ListRecentRuns lists the most recent runs ordered by descending start time.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

func scanRun(rows pgx.Rows) (RunRecord, error) {
	var (
		runID  string
		run    RunRecord
		errMsg sql.NullString
	)

	if err := rows.Scan(
		&runID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.RawRoot,
		&run.FilesTotal,
		&run.FilesFailed,
		&run.RowsWritten,
		&run.Skipped,
		&run.Status,
		&errMsg,
	); err != nil {
		return RunRecord{}, err
	}

	id, err := uuid.Parse(runID)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parse run id: %w", err)
	}
	run.ID = id

	if errMsg.Valid {
		msg := errMsg.String
		run.Error = &msg
	}
	return run, nil
}

var (
	_ RunRecorder    = (*Store)(nil)
	_ RunLister      = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
