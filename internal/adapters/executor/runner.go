// Package executor consumes job-start events from the durable queue and runs
// them through the workflow engine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/queue"
	obserrors "github.com/buidl-renaissance/collector-quest-sub003/internal/observability/errors"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/metrics"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/notify"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/statsd"
)

const (
	defaultLease        = time.Minute
	defaultPollInterval = 5 * time.Second
	reserveErrorBackoff = time.Second
	settleTimeout       = 5 * time.Second
)

// Executor runs one job to a terminal state. A non-nil error asks for redelivery.
type Executor interface {
	Execute(ctx context.Context, evt model.JobStartEvent) error
}

// FailureNotifier is told about dead-lettered events.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, payload notify.FailurePayload)
}

// RunnerOptions configures the executor runner.
type RunnerOptions struct {
	Queue    core.EventQueue                 // Required
	Results  core.GenerationResultRepository // Required
	Engine   Executor                        // Required
	Notifier *queue.Notifier                 // Optional: wakes idle workers on new events
	Failures FailureNotifier                 // Optional

	// EventNames restricts reservation to these events. Empty means any.
	EventNames   []string
	Concurrency  int           // number of worker goroutines; defaults to 1
	Lease        time.Duration // per-event lease; defaults to 1m
	PollInterval time.Duration // idle re-check interval; defaults to 5s

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner reserves events, heartbeats their lease while the engine runs them,
// and acks or nacks the outcome.
type Runner struct {
	queue        core.EventQueue
	results      core.GenerationResultRepository
	engine       Executor
	notifier     *queue.Notifier
	failures     FailureNotifier
	eventNames   []string
	workers      int
	lease        time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      statsd.Sink
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("event queue is required")
	}
	if opts.Results == nil {
		return nil, errors.New("GenerationResultRepository is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("workflow engine is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	workers := max(opts.Concurrency, 1)
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Runner{
		queue:        opts.Queue,
		results:      opts.Results,
		engine:       opts.Engine,
		notifier:     opts.Notifier,
		failures:     opts.Failures,
		eventNames:   append([]string(nil), opts.EventNames...),
		workers:      workers,
		lease:        lease,
		pollInterval: poll,
		logger:       logger.With("component", "executor"),
		metrics:      opts.Metrics,
	}, nil
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight event has been settled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting executor",
		"workers", r.workers,
		"lease", r.lease,
		"event_names", r.eventNames,
	)

	var wake <-chan struct{}
	if r.notifier != nil {
		unsub, ch := r.notifier.Subscribe()
		defer unsub()
		wake = ch
	}

	var wg sync.WaitGroup
	for i := range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workerLoop(ctx, i, wake)
		}()
	}
	wg.Wait()

	r.logger.InfoContext(ctx, "executor stopped")
	return ctx.Err()
}

func (r *Runner) workerLoop(ctx context.Context, worker int, wake <-chan struct{}) {
	logger := r.logger.With("worker", worker)
	for ctx.Err() == nil {
		evt, err := r.queue.ReserveNext(ctx, core.ReserveEventParams{EventNames: r.eventNames, Lease: r.lease})
		switch {
		case err == nil:
			r.process(ctx, logger, evt)
		case errors.Is(err, model.ErrNoEventsAvailable):
			if !r.waitForWork(ctx, wake) {
				return
			}
		case ctx.Err() != nil:
			return
		default:
			logger.ErrorContext(ctx, "reserve next event failed", "error", err)
			if !sleepCtx(ctx, reserveErrorBackoff) {
				return
			}
		}
	}
}

// waitForWork blocks until a notification, the poll interval, or shutdown.
// It returns false on shutdown.
func (r *Runner) waitForWork(ctx context.Context, wake <-chan struct{}) bool {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-wake:
		if !ok {
			// Notifier stopped; fall back to polling.
			return sleepCtx(ctx, r.pollInterval)
		}
		return true
	case <-timer.C:
		return true
	}
}

func (r *Runner) process(ctx context.Context, logger *slog.Logger, evt *model.GenerationEvent) {
	start := time.Now()
	logger = logger.With("event_id", evt.ID, "result_id", evt.ResultID, "event_name", evt.EventName, "attempt", evt.Attempts)

	// Acks and nacks must land even when shutdown cancelled ctx.
	settleCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	}
	emit := func(outcome string, err error) {
		metrics.EmitDelivery(r.metrics, metrics.DeliveryMetric{
			EventName: evt.EventName,
			Outcome:   outcome,
			Attempt:   evt.Attempts,
			Duration:  time.Since(start),
			Err:       err,
		})
	}

	job, err := evt.StartEvent()
	if err != nil {
		logger.ErrorContext(ctx, "malformed job start event", "error", err)
		sctx, cancel := settleCtx()
		defer cancel()
		if _, ferr := r.results.Fail(sctx, evt.ResultID, "malformed job start event"); ferr != nil {
			logger.ErrorContext(ctx, "fail result for malformed event", "error", ferr)
		}
		r.ack(sctx, logger, evt.ID)
		emit(metrics.DeliveryMalformed, err)
		return
	}

	if _, err := r.results.SetEventID(ctx, job.ID, evt.ID); err != nil {
		logger.WarnContext(ctx, "record event id on result failed", "error", err)
	}

	jobCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		r.heartbeat(jobCtx, logger, evt.ID)
	}()

	runErr := r.engine.Execute(jobCtx, job)
	stopHeartbeat()
	<-hbDone

	sctx, cancel := settleCtx()
	defer cancel()

	if runErr == nil {
		r.ack(sctx, logger, evt.ID)
		emit(metrics.DeliveryAcked, nil)
		return
	}

	if ctx.Err() != nil {
		// Shutdown: the lease lapses and another executor picks the event up.
		logger.InfoContext(sctx, "job interrupted by shutdown, leaving event for redelivery")
		emit(metrics.DeliveryNacked, runErr)
		return
	}

	logger.WarnContext(ctx, "job execution failed, requeueing", "error", runErr)
	if _, err := r.queue.Nack(sctx, evt.ID, runErr.Error()); err != nil {
		logger.ErrorContext(ctx, "nack event failed", "error", err)
	}

	if evt.MaxAttempts > 0 && evt.Attempts >= evt.MaxAttempts {
		r.deadLetter(sctx, logger, evt, job, runErr)
		emit(metrics.DeliveryDead, runErr)
		return
	}
	emit(metrics.DeliveryNacked, runErr)
}

// deadLetter fails the result of an event whose deliveries are exhausted so
// pollers stop waiting on it.
func (r *Runner) deadLetter(ctx context.Context, logger *slog.Logger, evt *model.GenerationEvent, job model.JobStartEvent, runErr error) {
	msg := fmt.Sprintf("delivery attempts exhausted after %d attempts: %v", evt.Attempts, runErr)
	res, err := r.results.Fail(ctx, job.ID, msg)
	if err != nil {
		logger.ErrorContext(ctx, "fail dead-lettered result", "error", err)
		return
	}
	logger.ErrorContext(ctx, "event dead-lettered", "error", runErr)
	if res == nil || r.failures == nil {
		return
	}
	r.failures.NotifyFailure(ctx, notify.FailurePayload{
		ResultID:   res.ID,
		EventName:  res.EventName,
		ObjectType: res.ObjectType,
		ObjectID:   res.ObjectID,
		ObjectKey:  res.ObjectKey,
		Reason:     notify.ReasonDeadLettered,
		Attempts:   evt.Attempts,
		Error:      msg,
		ErrorClass: obserrors.Classify(runErr),
		OccurredAt: res.UpdatedAt,
		Metadata:   map[string]string{"event_id": evt.ID},
	})
}

func (r *Runner) ack(ctx context.Context, logger *slog.Logger, id string) {
	ok, err := r.queue.Ack(ctx, id)
	switch {
	case err != nil:
		logger.ErrorContext(ctx, "ack event failed", "error", err)
	case !ok:
		logger.WarnContext(ctx, "ack found no running event; lease was lost")
	}
}

// heartbeat extends the lease every lease/3 until ctx ends.
func (r *Runner) heartbeat(ctx context.Context, logger *slog.Logger, id string) {
	ticker := time.NewTicker(max(r.lease/3, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := r.queue.Heartbeat(ctx, id, r.lease)
			switch {
			case err != nil && ctx.Err() == nil:
				logger.WarnContext(ctx, "heartbeat failed", "error", err)
			case err == nil && !ok:
				logger.WarnContext(ctx, "heartbeat found no running event; lease was lost")
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
