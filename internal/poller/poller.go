// Package poller waits for generation results to reach a terminal state.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 5 * time.Minute
)

var (
	// ErrTimeout is matched by *TimeoutError.
	ErrTimeout = errors.New("timed out waiting for generation")
	// ErrAborted is returned when the caller's context ends before a terminal status.
	ErrAborted = errors.New("polling aborted")
	// ErrNotFound is returned for unknown or expired result ids.
	ErrNotFound = errors.New("generation result not found")
)

// Fetcher loads the current state of a result.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*model.GenerationResult, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id string) (*model.GenerationResult, error)

func (f FetcherFunc) Fetch(ctx context.Context, id string) (*model.GenerationResult, error) {
	return f(ctx, id)
}

// Progress is reported for every poll that finds the result pending.
type Progress struct {
	Step    string
	Message string
	Partial json.RawMessage
}

// Options configures Await. Zero values use DefaultInterval and DefaultTimeout;
// a negative Timeout waits until ctx ends.
type Options struct {
	Interval   time.Duration
	Timeout    time.Duration
	OnProgress func(Progress)
}

// JobError reports a generation that finished with status error.
type JobError struct {
	ID      string
	Message string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("generation %s failed: %s", e.ID, e.Message)
}

// TimeoutError reports that Timeout elapsed before the result became terminal.
// The job itself keeps running server-side.
type TimeoutError struct {
	ID      string
	Elapsed time.Duration
	// LastErr is the most recent fetch error, if any.
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("generation %s not finished after %s", e.ID, e.Elapsed.Round(time.Millisecond))
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// Await polls f until the result id is terminal and decodes a completed
// result into T. The first fetch happens immediately.
//
// It returns *JobError for failed jobs, *TimeoutError (matching ErrTimeout)
// when opts.Timeout elapses, ErrAborted when ctx ends, and ErrNotFound for
// unknown ids. Fetch errors other than not-found are retried until timeout.
// No progress callback fires after ctx ends.
func Await[T any](ctx context.Context, f Fetcher, id string, opts Options) (T, error) {
	var zero T
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	pollCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	var lastErr error
	interrupted := func() error {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
		}
		if pollCtx.Err() != nil {
			return &TimeoutError{ID: id, Elapsed: time.Since(start), LastErr: lastErr}
		}
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := f.Fetch(pollCtx, id)
		if ctx.Err() != nil {
			return zero, interrupted()
		}

		switch {
		case err == nil && res != nil:
			switch res.Status {
			case model.GenerationStatusCompleted:
				return decode[T](id, res.Result)
			case model.GenerationStatusError:
				msg := ""
				if res.Error != nil {
					msg = *res.Error
				}
				return zero, &JobError{ID: id, Message: msg}
			default:
				if opts.OnProgress != nil {
					opts.OnProgress(progressOf(res))
				}
			}
		case errors.Is(err, ErrNotFound) || errors.Is(err, model.ErrResultNotFound):
			return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
		case err != nil && pollCtx.Err() == nil:
			lastErr = err
		}

		select {
		case <-pollCtx.Done():
			return zero, interrupted()
		case <-ticker.C:
		}
	}
}

func decode[T any](id string, raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode result %s: %w", id, err)
	}
	return out, nil
}

func progressOf(res *model.GenerationResult) Progress {
	p := Progress{Partial: res.Result}
	if res.Step != nil {
		p.Step = *res.Step
	}
	if res.Message != nil {
		p.Message = *res.Message
	}
	return p
}
