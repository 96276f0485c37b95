package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"finance-etl/internal/alerting"
	"finance-etl/internal/config"
	"finance-etl/internal/metrics"
	"finance-etl/internal/pipeline"
	"finance-etl/internal/scheduler"
	"finance-etl/internal/storage"
	"finance-etl/internal/transform"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// TransformOptions override the configured paths and failure mode for one run.
type TransformOptions struct {
	RawDir       string
	ProcessedDir string
	FailFast     *bool
}

// ExportOptions hold parameters for exporting one instrument's timeseries.
type ExportOptions struct {
	Domain     string
	Instrument string
	Field      string
	From       *time.Time
	To         *time.Time
	PNGPath    string
	CSVPath    string
	MaxPoints  int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newTransformer() *transform.Transformer {
	fin := a.Config.Transform.Financials
	return transform.New(transform.Options{
		MaxMissingRatio: fin.MaxMissingRatio,
		FillMean:        fin.FillStrategy == config.FillBatchMean,
	}, a.Logger)
}

func (a *App) newPipeline(opts TransformOptions, store *storage.Store, m *metrics.Metrics) *pipeline.Pipeline {
	failFast := a.Config.Transform.FailFast
	if opts.FailFast != nil {
		failFast = *opts.FailFast
	}

	deps := pipeline.Deps{
		Transformer: a.newTransformer(),
		Merger:      storage.NewMerger(a.Config.Transform.DateColumns, a.Logger),
		Notifier:    a.newNotifier(),
		Metrics:     m,
	}
	if store != nil {
		deps.Locker = store
		deps.Recorder = store
	}

	return pipeline.New(pipeline.Options{
		ProcessedRoot: a.processedDir(opts),
		FailFast:      failFast,
		LockKey:       a.Config.Scheduler.AdvisoryLockKey,
		Channels:      a.Config.Alerting.Channels,
	}, deps, a.Logger)
}

func (a *App) rawDir(opts TransformOptions) string {
	if opts.RawDir != "" {
		return opts.RawDir
	}
	return a.Config.Paths.RawDir
}

func (a *App) processedDir(opts TransformOptions) string {
	if opts.ProcessedDir != "" {
		return opts.ProcessedDir
	}
	return a.Config.Paths.ProcessedDir
}

// Transform executes a single transform run over the raw tree.
func (a *App) Transform(ctx context.Context, opts TransformOptions) (*pipeline.Report, error) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; run ledger and run lock disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	m := metrics.New()
	report, runErr := a.newPipeline(opts, store, m).Run(ctx, a.rawDir(opts))

	if path := a.Config.Metrics.TextfilePath; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			a.Logger.Error().Err(err).Str("path", path).Msg("failed to write metrics textfile")
		}
	}
	return report, runErr
}

// Watch runs the transform stage on the configured schedule until interrupted.
func (a *App) Watch(ctx context.Context, opts TransformOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; overlapping runs across processes are not prevented")
	}
	if closeStore != nil {
		defer closeStore()
	}

	m := metrics.New()
	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		stop := a.serveMetrics(addr, m)
		defer stop()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: true,
	}, a.Logger)

	p := a.newPipeline(opts, store, m)
	raw := a.rawDir(opts)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Str("raw_dir", raw).Msg("starting transform watch")
	err = sched.Run(ctx, func(ctx context.Context, slot time.Time) error {
		_, err := p.Run(ctx, raw)
		if errors.Is(err, pipeline.ErrRunInProgress) {
			a.Logger.Info().Time("slot", slot).Msg("another transform run holds the lock; slot skipped")
			return nil
		}
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch terminated with error")
		return err
	}

	a.Logger.Info().Msg("transform watch stopped")
	return nil
}

func (a *App) serveMetrics(addr string, m *metrics.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.Logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
