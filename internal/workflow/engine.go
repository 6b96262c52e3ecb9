// Package workflow runs multi-step generation jobs: named steps with local
// retries, a per-job step ledger, cooperative cancellation, progress
// snapshots and bounded fan-out over text chunks.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	obserrors "github.com/buidl-renaissance/collector-quest-sub003/internal/observability/errors"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/metrics"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/notify"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/statsd"
)

// CancelChecker reports whether cancellation was requested for a result.
type CancelChecker interface {
	IsCancelRequested(ctx context.Context, id string) (bool, error)
}

// FailureNotifier receives jobs that finalized as error.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, payload notify.FailurePayload)
}

// EngineOptions groups dependencies for Engine.
type EngineOptions struct {
	Results  core.GenerationResultRepository // Required
	Registry *Registry                       // Required
	Ledger   core.StepLedger                 // Optional: lets redelivered jobs skip finished steps
	Cancel   CancelChecker                   // Optional
	Notifier FailureNotifier                 // Optional
	Retry    RetryPolicy
	// StepTimeout bounds each step attempt. Zero disables it.
	StepTimeout time.Duration
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// Engine executes job-start events against registered workflows and writes
// exactly one terminal state per job.
type Engine struct {
	results     core.GenerationResultRepository
	registry    *Registry
	ledger      core.StepLedger
	cancel      CancelChecker
	notifier    FailureNotifier
	retry       RetryPolicy
	stepTimeout time.Duration
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewEngine constructs an Engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Results == nil {
		return nil, errors.New("GenerationResultRepository is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("workflow registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := opts.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}
	return &Engine{
		results:     opts.Results,
		registry:    opts.Registry,
		ledger:      opts.Ledger,
		cancel:      opts.Cancel,
		notifier:    opts.Notifier,
		retry:       retry.normalized(),
		stepTimeout: opts.StepTimeout,
		logger:      logger.With("component", "workflow_engine"),
		metrics:     opts.Metrics,
	}, nil
}

// Registry returns the engine's workflow registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Execute runs the workflow for evt and finalizes its result.
//
// Workflow failures are written as an error result and Execute returns nil.
// A non-nil return means the job did not reach a terminal write (shutdown or
// store failure) and the event should be redelivered.
func (e *Engine) Execute(ctx context.Context, evt model.JobStartEvent) error {
	current, err := e.results.Get(ctx, evt.ID)
	if errors.Is(err, model.ErrResultNotFound) {
		e.logger.WarnContext(ctx, "result missing for job, dropping", "id", evt.ID, "event_name", evt.EventName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load result %s: %w", evt.ID, err)
	}
	if current.IsTerminal() {
		e.logger.InfoContext(ctx, "result already terminal, skipping redelivered job",
			"id", evt.ID, "status", current.Status)
		return nil
	}

	def, ok := e.registry.Lookup(evt.EventName)
	if !ok {
		return e.finalize(ctx, current, nil, fmt.Errorf("%w: %s", model.ErrUnknownEvent, evt.EventName))
	}

	job := e.newJob(evt)
	e.logger.InfoContext(ctx, "job started", "id", job.ID, "event_name", job.EventName, "target", job.Target.Key())

	payload, runErr := e.run(ctx, def, job)
	if runErr != nil && ctx.Err() != nil && !errors.Is(runErr, ErrCancelled) {
		// Shutdown mid-run: leave the row pending for redelivery.
		return fmt.Errorf("job %s interrupted: %w", job.ID, ctx.Err())
	}
	return e.finalize(ctx, current, payload, runErr)
}

func (e *Engine) run(ctx context.Context, def Definition, job *Job) (payload any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			e.logger.ErrorContext(ctx, "workflow panicked",
				"id", job.ID,
				"event_name", job.EventName,
				"error", rec,
				"stack", string(stack))
			payload, err = nil, &PanicError{Value: rec, Stack: stack}
		}
	}()
	return def.Run(ctx, job)
}

func (e *Engine) finalize(ctx context.Context, res *model.GenerationResult, payload any, runErr error) error {
	var (
		written    *model.GenerationResult
		transition string
		err        error
	)

	switch {
	case runErr == nil:
		raw, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return e.finalize(ctx, res, nil, fmt.Errorf("encode result payload: %w", marshalErr))
		}
		transition = metrics.TransitionCompleted
		written, err = e.results.Complete(ctx, res.ID, raw)
	case errors.Is(runErr, ErrCancelled):
		transition = metrics.TransitionCancelled
		written, err = e.results.Fail(ctx, res.ID, ErrCancelled.Error())
	default:
		transition = metrics.TransitionFailed
		written, err = e.results.Fail(ctx, res.ID, runErr.Error())
	}
	if err != nil {
		return fmt.Errorf("finalize result %s: %w", res.ID, err)
	}

	if written == nil {
		e.logger.InfoContext(ctx, "result finalized elsewhere", "id", res.ID)
	} else {
		metrics.EmitTransition(e.metrics, metrics.TransitionMetric{
			EventName:  res.EventName,
			Transition: transition,
			Duration:   time.Since(res.CreatedAt),
		})
		attrs := []any{"id", res.ID, "event_name", res.EventName, "transition", transition}
		if runErr != nil {
			e.logger.WarnContext(ctx, "job failed", append(attrs, "error", runErr)...)
			if transition == metrics.TransitionFailed {
				e.notifyFailure(ctx, written, runErr)
			}
		} else {
			e.logger.InfoContext(ctx, "job completed", attrs...)
		}
	}

	if e.ledger != nil {
		if ferr := e.ledger.Forget(ctx, res.ID); ferr != nil {
			e.logger.WarnContext(ctx, "failed to clear step ledger", "id", res.ID, "error", ferr)
		}
	}
	return nil
}

func (e *Engine) notifyFailure(ctx context.Context, res *model.GenerationResult, runErr error) {
	if e.notifier == nil {
		return
	}
	payload := notify.FailurePayload{
		ResultID:   res.ID,
		EventName:  res.EventName,
		ObjectType: res.ObjectType,
		ObjectID:   res.ObjectID,
		ObjectKey:  res.ObjectKey,
		Reason:     notify.ReasonFailed,
		Error:      runErr.Error(),
		ErrorClass: obserrors.Classify(runErr),
		OccurredAt: res.UpdatedAt,
	}
	var stepErr *StepError
	if errors.As(runErr, &stepErr) {
		payload.Attempts = stepErr.Attempts
		payload.Metadata = map[string]string{"step": stepErr.Step}
	}
	e.notifier.NotifyFailure(ctx, payload)
}

func (e *Engine) newJob(evt model.JobStartEvent) *Job {
	return &Job{
		ID:        evt.ID,
		EventName: evt.EventName,
		Target:    evt.Target(),
		Data:      evt.Data,
		engine:    e,
	}
}

// Job is the handle a workflow uses to run steps. It is safe for concurrent use.
type Job struct {
	ID        string
	EventName string
	Target    model.Target
	Data      json.RawMessage

	engine *Engine
}

// Decode unmarshals the job's input data into v.
func (j *Job) Decode(v any) error {
	if len(j.Data) == 0 {
		return Permanent(errors.New("job data is empty"))
	}
	if err := json.Unmarshal(j.Data, v); err != nil {
		return Permanent(fmt.Errorf("decode job data: %w", err))
	}
	return nil
}

// Report writes a progress snapshot outside of a step.
func (j *Job) Report(ctx context.Context, step, message string, partial any) error {
	var raw json.RawMessage
	if partial != nil {
		b, err := json.Marshal(partial)
		if err != nil {
			return fmt.Errorf("encode partial result: %w", err)
		}
		raw = b
	}
	_, err := j.engine.results.UpdateProgress(ctx, j.ID, model.ProgressUpdate{
		Step:    step,
		Message: message,
		Payload: raw,
	})
	return err
}

func (j *Job) cancelRequested(ctx context.Context) bool {
	if j.engine.cancel == nil {
		return false
	}
	cancelled, err := j.engine.cancel.IsCancelRequested(ctx, j.ID)
	if err != nil {
		j.engine.logger.WarnContext(ctx, "cancel check failed", "id", j.ID, "error", err)
		return false
	}
	return cancelled
}
