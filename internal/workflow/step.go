package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/metrics"
)

// StepOption customises a single Step call.
type StepOption func(*stepConfig)

type stepConfig struct {
	message  string
	partial  bool
	noLedger bool
	retry    *RetryPolicy
}

// WithMessage sets the progress message written when the step succeeds.
func WithMessage(msg string) StepOption {
	return func(c *stepConfig) { c.message = msg }
}

// WithPartialResult publishes the step output as the job's partial result.
func WithPartialResult() StepOption {
	return func(c *stepConfig) { c.partial = true }
}

// WithoutLedger keeps the step output out of the step ledger. Use it for bulky
// outputs that are cheaper to recompute than to store; a redelivered job runs
// the step again.
func WithoutLedger() StepOption {
	return func(c *stepConfig) { c.noLedger = true }
}

// WithRetry overrides the engine retry policy for one step.
func WithRetry(p RetryPolicy) StepOption {
	return func(c *stepConfig) {
		n := p.normalized()
		c.retry = &n
	}
}

// Step runs fn as the named step of job and returns its output.
//
// A step already recorded in the ledger for this job returns the recorded
// output without calling fn. Otherwise fn is retried per the retry policy
// until it succeeds, returns a Permanent error, or attempts run out, in which
// case a *StepError is returned. Steps check for cancellation before running
// and return ErrCancelled when it was requested.
func Step[T any](ctx context.Context, job *Job, name string, fn func(context.Context) (T, error), opts ...StepOption) (T, error) {
	var zero T
	e := job.engine
	cfg := stepConfig{message: "completed " + name}
	for _, opt := range opts {
		opt(&cfg)
	}
	policy := e.retry
	if cfg.retry != nil {
		policy = *cfg.retry
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if job.cancelRequested(ctx) {
		return zero, ErrCancelled
	}

	if !cfg.noLedger {
		if out, ok := lookupStep[T](ctx, job, name); ok {
			e.emitStep(job, name, metrics.ResultSkipped, 0, 0, nil)
			return out, nil
		}
	}

	start := time.Now()
	var lastErr error
	attempts := 0
	for attempts < policy.MaxAttempts {
		if attempts > 0 {
			if err := sleepCtx(ctx, policy.Backoff(attempts)); err != nil {
				return zero, err
			}
		}
		attempts++

		out, err := runAttempt(ctx, e.stepTimeout, fn)
		if err == nil {
			e.emitStep(job, name, metrics.ResultSuccess, attempts, time.Since(start), nil)
			recordStep(ctx, job, name, out, cfg)
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if IsPermanent(err) {
			break
		}
		e.logger.WarnContext(ctx, "step attempt failed",
			"id", job.ID,
			"step", name,
			"attempt", attempts,
			"max_attempts", policy.MaxAttempts,
			"error", err,
		)
	}

	e.emitStep(job, name, metrics.ResultError, attempts, time.Since(start), lastErr)
	return zero, &StepError{Step: name, Attempts: attempts, Err: lastErr}
}

// runAttempt calls fn once. A panic in fn becomes a Permanent *PanicError.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (out T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			out, err = zero, Permanent(&PanicError{Value: rec, Stack: debug.Stack()})
		}
	}()
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func lookupStep[T any](ctx context.Context, job *Job, name string) (T, bool) {
	var out T
	ledger := job.engine.ledger
	if ledger == nil {
		return out, false
	}
	raw, ok, err := ledger.Lookup(ctx, job.ID, name)
	if err != nil {
		job.engine.logger.WarnContext(ctx, "step ledger lookup failed", "id", job.ID, "step", name, "error", err)
		return out, false
	}
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		job.engine.logger.WarnContext(ctx, "discarding unreadable ledger entry", "id", job.ID, "step", name, "error", err)
		return out, false
	}
	return out, true
}

func recordStep[T any](ctx context.Context, job *Job, name string, out T, cfg stepConfig) {
	e := job.engine
	raw, err := json.Marshal(out)
	if err != nil {
		e.logger.WarnContext(ctx, "step output is not JSON encodable", "id", job.ID, "step", name, "error", err)
		raw = nil
	}

	if e.ledger != nil && raw != nil && !cfg.noLedger {
		if err := e.ledger.Record(ctx, job.ID, name, raw); err != nil {
			e.logger.WarnContext(ctx, "step ledger record failed", "id", job.ID, "step", name, "error", err)
		}
	}

	update := model.ProgressUpdate{Step: name, Message: cfg.message}
	if cfg.partial {
		update.Payload = raw
	}
	if _, err := e.results.UpdateProgress(ctx, job.ID, update); err != nil {
		e.logger.WarnContext(ctx, "progress update failed", "id", job.ID, "step", name, "error", err)
	}
}

func (e *Engine) emitStep(job *Job, name, result string, attempts int, d time.Duration, err error) {
	metrics.EmitStep(e.metrics, metrics.StepMetric{
		EventName: job.EventName,
		Step:      metricStepName(name),
		Result:    result,
		Attempts:  attempts,
		Duration:  d,
		Err:       err,
	})
}

// metricStepName drops numeric segments, so "narration.3.fetch" becomes "narration.fetch".
func metricStepName(name string) string {
	parts := strings.Split(name, ".")
	kept := parts[:0]
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err == nil {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, ".")
}

// stepName joins name segments with dots.
func stepName(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ".")
}
