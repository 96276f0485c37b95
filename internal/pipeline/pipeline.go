// Package pipeline walks a raw data tree, dispatches every payload to its
// domain transformer and upserts the results into the processed store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"finance-etl/internal/alerting"
	"finance-etl/internal/metrics"
	"finance-etl/internal/storage"
	"finance-etl/internal/transform"
)

//go:generate mockgen -destination=mock_storage_test.go -package=pipeline finance-etl/internal/storage AdvisoryLocker,RunRecorder
//go:generate mockgen -destination=mock_alerting_test.go -package=pipeline finance-etl/internal/alerting Notifier

var (
	// ErrDirectoryNotFound is returned when the raw root does not exist.
	ErrDirectoryNotFound = errors.New("raw directory not found")
	// ErrUnknownDomain marks a raw subdirectory no transformer handles. It is logged, never returned.
	ErrUnknownDomain = errors.New("unknown domain")
	// ErrRunFailed is joined with the per-file failures when a run continued past them.
	ErrRunFailed = errors.New("transform run finished with failures")
	// ErrRunInProgress is returned when another process holds the run lock.
	ErrRunInProgress = errors.New("transform run already in progress")
)

// Options tune a Pipeline.
type Options struct {
	ProcessedRoot string
	// FailFast aborts the run on the first failing file.
	FailFast bool
	LockKey  int64
	Channels []string
}

// Deps are the collaborators of a Pipeline. Only Transformer and Merger are required.
type Deps struct {
	Transformer *transform.Transformer
	Merger      *storage.Merger
	Locker      storage.AdvisoryLocker
	Recorder    storage.RunRecorder
	Notifier    alerting.Notifier
	Metrics     *metrics.Metrics
}

// Pipeline runs the transform stage over a raw tree.
type Pipeline struct {
	opts Options
	deps Deps
	now  func() time.Time

	logger zerolog.Logger
}

// New constructs a Pipeline.
func New(opts Options, deps Deps, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		opts:   opts,
		deps:   deps,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run transforms every payload under rawRoot. The report is returned whenever
// the run started, including alongside an error.
func (p *Pipeline) Run(ctx context.Context, rawRoot string) (*Report, error) {
	info, err := os.Stat(rawRoot)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, rawRoot)
	}

	unlock, proceed, err := p.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		p.logger.Warn().Int64("lock_key", p.opts.LockKey).Msg("skip run because advisory lock held elsewhere")
		return nil, ErrRunInProgress
	}
	if unlock != nil {
		defer unlock()
	}

	report := newReport(rawRoot, p.now())
	logger := p.logger.With().Str("run_id", report.RunID.String()).Logger()
	logger.Info().Str("raw_root", rawRoot).Str("processed_root", p.opts.ProcessedRoot).Msg("transform run started")

	runErr := p.execute(ctx, logger, rawRoot, report)
	if runErr == nil && len(report.Failures) > 0 {
		errs := []error{ErrRunFailed}
		for _, f := range report.Failures {
			errs = append(errs, f)
		}
		runErr = errors.Join(errs...)
	}
	report.FinishedAt = p.now()

	p.finish(ctx, logger, report, runErr)
	return report, runErr
}

func (p *Pipeline) execute(ctx context.Context, logger zerolog.Logger, rawRoot string, report *Report) error {
	entries, err := os.ReadDir(rawRoot)
	if err != nil {
		return fmt.Errorf("read raw root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		domain := transform.Domain(entry.Name())
		dir := filepath.Join(rawRoot, entry.Name())

		if domain == transform.DomainFinancials {
			if err := p.runFinancials(logger, dir, report); err != nil {
				return err
			}
			continue
		}

		fn, ok := p.deps.Transformer.ForDomain(domain)
		if !ok {
			logger.Warn().Err(ErrUnknownDomain).Str("domain", entry.Name()).Msg("skipping directory")
			report.Skipped = append(report.Skipped, entry.Name())
			p.deps.Metrics.ObserveFile(entry.Name(), "skipped")
			continue
		}
		if err := p.runDomain(ctx, logger, domain, dir, fn, report); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runDomain(ctx context.Context, logger zerolog.Logger, domain transform.Domain, dir string, fn transform.FileFunc, report *Report) error {
	files, err := jsonFiles(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", domain, err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Files++

		err := p.runFile(domain, path, fn, report)
		if err == nil {
			report.Succeeded++
			p.deps.Metrics.ObserveFile(string(domain), "ok")
			continue
		}

		fileErr := &transform.FileError{Domain: domain, Path: path, Entity: transform.EntityName(path), Err: err}
		p.recordFailure(logger, report, fileErr)
		if p.opts.FailFast {
			return fileErr
		}
	}

	logger.Info().Str("domain", string(domain)).Int("files", len(files)).Msg("domain transformed")
	return nil
}

func (p *Pipeline) runFile(domain transform.Domain, path string, fn transform.FileFunc, report *Report) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	out, err := fn(raw)
	if err != nil {
		return err
	}
	return p.mergeOutput(domain, out, report)
}

func (p *Pipeline) runFinancials(logger zerolog.Logger, dir string, report *Report) error {
	domain := transform.DomainFinancials
	files, err := jsonFiles(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", domain, err)
	}
	report.Files += len(files)

	out, err := p.deps.Transformer.Financials(dir)
	failures := fileErrors(domain, dir, err)
	for _, f := range failures {
		p.recordFailure(logger, report, f)
	}
	if len(failures) > 0 && p.opts.FailFast {
		return failures[0]
	}

	if out != nil {
		if err := p.mergeOutput(domain, out, report); err != nil {
			fileErr := &transform.FileError{Domain: domain, Path: dir, Entity: string(domain), Err: err}
			p.recordFailure(logger, report, fileErr)
			if p.opts.FailFast {
				return fileErr
			}
			return nil
		}
	}

	ok := len(files) - len(failures)
	if ok < 0 {
		ok = 0
	}
	report.Succeeded += ok
	for i := 0; i < ok; i++ {
		p.deps.Metrics.ObserveFile(string(domain), "ok")
	}
	return nil
}

// mergeOutput upserts every non-empty table of out into <processed>/<domain>/<table>.csv.
// The instruments table goes last so an instrument row is never stored without its points.
func (p *Pipeline) mergeOutput(domain transform.Domain, out transform.Output, report *Report) error {
	tables := out.Tables()
	sort.SliceStable(tables, func(i, j int) bool {
		return tables[i].Name != transform.TableInstruments && tables[j].Name == transform.TableInstruments
	})

	for _, table := range tables {
		if table.Rows.Len() == 0 {
			continue
		}
		path := filepath.Join(p.opts.ProcessedRoot, string(domain), table.Name+".csv")
		stats, err := p.deps.Merger.Merge(table.Rows, path, table.Key)
		if err != nil {
			return fmt.Errorf("merge %s: %w", table.Name, err)
		}
		report.RowsWritten += stats.Incoming
		p.deps.Metrics.ObserveRows(string(domain), table.Name, stats.Incoming)
	}
	return nil
}

func (p *Pipeline) recordFailure(logger zerolog.Logger, report *Report, fileErr *transform.FileError) {
	report.Failures = append(report.Failures, fileErr)
	p.deps.Metrics.ObserveFile(string(fileErr.Domain), "failed")
	logger.Error().Err(fileErr.Err).
		Str("domain", string(fileErr.Domain)).
		Str("path", fileErr.Path).
		Str("entity", fileErr.Entity).
		Msg("transform file failed")
}

func (p *Pipeline) finish(ctx context.Context, logger zerolog.Logger, report *Report, runErr error) {
	record := report.Record(runErr)
	p.deps.Metrics.ObserveRun(record.Status, report.StartedAt, report.FinishedAt)

	// the ledger and the alert outlive a cancelled run context
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if p.deps.Recorder != nil {
		if err := p.deps.Recorder.RecordRun(ctx, record); err != nil {
			logger.Error().Err(err).Msg("failed to record run")
		}
	}

	if p.deps.Notifier != nil && len(report.Failures) > 0 {
		if err := p.deps.Notifier.Notify(ctx, report.notification(p.opts.Channels)); err != nil {
			logger.Error().Err(err).Msg("failed to dispatch failure alert")
		}
	}

	event := logger.Info()
	if runErr != nil {
		event = logger.Warn()
	}
	event.Str("status", record.Status).
		Int("files", report.Files).
		Int("succeeded", report.Succeeded).
		Int("failed", len(report.Failures)).
		Int("rows", report.RowsWritten).
		Strs("skipped", report.Skipped).
		Dur("duration", record.Duration()).
		Msg("transform run finished")
}

func (p *Pipeline) acquireLock(ctx context.Context) (func(), bool, error) {
	if p.opts.LockKey == 0 || p.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := p.deps.Locker.TryAdvisoryLock(ctx, p.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// fileErrors flattens the aggregator's joined error into file failures.
func fileErrors(domain transform.Domain, dir string, err error) []*transform.FileError {
	if err == nil {
		return nil
	}
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	out := make([]*transform.FileError, 0, len(errs))
	for _, e := range errs {
		var fe *transform.FileError
		if errors.As(e, &fe) {
			out = append(out, fe)
			continue
		}
		out = append(out, &transform.FileError{Domain: domain, Path: dir, Entity: string(domain), Err: e})
	}
	return out
}
