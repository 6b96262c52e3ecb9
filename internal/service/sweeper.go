package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/metrics"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/statsd"
)

// SweepServiceOptions groups dependencies for SweepService.
type SweepServiceOptions struct {
	Repo    core.SweepRepository // Required
	Config  config.SweeperConfig // Required
	Logger  *slog.Logger         // Optional
	Metrics statsd.Sink          // Optional
}

// SweepService deletes expired results and finished queue events on a cron schedule.
//
// Overlapping runs are skipped in-process; the repository's advisory locks keep
// concurrent processes from sweeping the same table at once.
type SweepService struct {
	repo    core.SweepRepository
	config  config.SweeperConfig
	logger  *slog.Logger
	metrics statsd.Sink

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Results  int64
	Events   int64
	Duration time.Duration
}

// NewSweepService constructs a new SweepService.
func NewSweepService(opts SweepServiceOptions) (*SweepService, error) {
	if opts.Repo == nil {
		return nil, errors.New("SweepRepository is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sweeper")
	logger.Debug("SweepService initialized",
		"schedule", cfg.Schedule,
		"retention", cfg.Retention,
		"batch_size", cfg.BatchSize,
	)

	return &SweepService{
		repo:    opts.Repo,
		config:  cfg,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Start schedules the sweep. It returns an error when already started or when
// the schedule cannot be parsed. Scheduled runs use ctx until Stop is called.
func (s *SweepService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})))
	if _, err := c.AddFunc(s.config.Schedule, func() { s.scheduledRun(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule sweeper %q: %w", s.config.Schedule, err)
	}

	s.cron = c
	s.cancel = cancel
	c.Start()

	s.logger.InfoContext(ctx, "sweeper started", "schedule", s.config.Schedule, "retention", s.config.Retention)

	if s.config.RunOnStart {
		go s.scheduledRun(runCtx)
	}
	return nil
}

// Stop cancels any in-flight sweep and waits for it to return.
func (s *SweepService) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
}

// Running reports whether the schedule is active.
func (s *SweepService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *SweepService) scheduledRun(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		if isContextCancellation(err) {
			s.logger.Debug("sweep cancelled by context", "error", err)
			return
		}
		s.logger.ErrorContext(ctx, "sweep failed", "error", err)
	}
}

// RunOnce deletes expired results and finished events, each in batches until none remain.
func (s *SweepService) RunOnce(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	params := core.SweepParams{MaxAge: s.config.Retention, BatchSize: s.config.BatchSize}

	var (
		report SweepReport
		errs   []error
	)
	steps := []struct {
		table string
		fn    func(context.Context, core.SweepParams) (int64, error)
		count *int64
	}{
		{"generation_results", s.repo.DeleteExpiredResults, &report.Results},
		{"generation_events", s.repo.DeleteFinishedEvents, &report.Events},
	}

	for _, step := range steps {
		stepStart := time.Now()
		n, err := drainBatches(ctx, func(ctx context.Context) (int64, error) {
			return step.fn(ctx, params)
		})
		*step.count = n

		metrics.EmitSweep(s.metrics, metrics.SweepMetric{
			Table:    step.table,
			Deleted:  n,
			Duration: time.Since(stepStart),
			Err:      suppressContextCancellation(err),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", step.table, err))
			continue
		}
		if n > 0 {
			s.logger.InfoContext(ctx, "swept expired rows", "table", step.table, "count", n, "max_age", params.MaxAge)
		}
	}

	report.Duration = time.Since(start)
	if len(errs) == 0 && s.metrics != nil {
		s.metrics.Gauge("sweeper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
	return report, errors.Join(errs...)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
