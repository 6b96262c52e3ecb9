package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/metrics"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/statsd"
)

const (
	dispatchPollEvery   = 25 * time.Millisecond
	maxDispatchAttempts = 3
)

// EventCatalog reports whether a workflow is registered for an event name.
type EventCatalog interface {
	Has(eventName string) bool
}

// DispatcherServiceOptions groups dependencies for DispatcherService.
type DispatcherServiceOptions struct {
	Results   core.GenerationResultRepository // Required
	Publisher core.EventPublisher             // Required
	Lock      core.DispatchLock               // Optional: cross-process dispatch lock
	Catalog   EventCatalog                    // Optional: rejects unknown event names
	Config    config.DispatchConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
	NewID     func() string // Optional: defaults to uuid.NewString
}

// DispatcherService starts generation jobs, converging concurrent requests for
// the same target on one result.
type DispatcherService struct {
	results   core.GenerationResultRepository
	publisher core.EventPublisher
	lock      core.DispatchLock
	catalog   EventCatalog
	config    config.DispatchConfig
	logger    *slog.Logger
	metrics   statsd.Sink
	newID     func() string
}

// NewDispatcherService constructs a new DispatcherService.
func NewDispatcherService(opts DispatcherServiceOptions) (*DispatcherService, error) {
	if opts.Results == nil {
		return nil, errors.New("GenerationResultRepository is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("EventPublisher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	cfg := opts.Config
	cfg.Sanitize()

	return &DispatcherService{
		results:   opts.Results,
		publisher: opts.Publisher,
		lock:      opts.Lock,
		catalog:   opts.Catalog,
		config:    cfg,
		logger:    logger.With("component", "dispatcher"),
		metrics:   opts.Metrics,
		newID:     newID,
	}, nil
}

// Dispatch returns the completed or pending result for the request's target, or
// creates a pending result and emits its job-start event.
func (s *DispatcherService) Dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchResult, error) {
	start := time.Now()
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.catalog != nil && !s.catalog.Has(req.EventName) {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownEvent, req.EventName)
	}

	out, err := s.dispatch(ctx, req)

	result := metrics.ResultCreated
	switch {
	case err != nil:
		result = metrics.ResultError
	case out.Reused:
		result = metrics.ResultReused
	}
	metrics.EmitDispatch(s.metrics, metrics.DispatchMetric{
		EventName: req.EventName,
		Result:    result,
		Duration:  time.Since(start),
		Err:       err,
	})
	return out, err
}

func (s *DispatcherService) dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchResult, error) {
	target := req.Target()

	release, reused, err := s.acquireLock(ctx, target)
	if err != nil {
		return nil, err
	}
	if reused != nil {
		return &model.DispatchResult{Result: reused, Reused: true}, nil
	}
	defer release()

	for range maxDispatchAttempts {
		existing, err := s.findReusable(ctx, target, req.Force)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &model.DispatchResult{Result: existing, Reused: true}, nil
		}

		created, err := s.results.CreatePending(ctx, model.CreatePendingParams{
			ID:        s.newID(),
			EventName: req.EventName,
			Target:    target,
		})
		if errors.Is(err, model.ErrPendingTargetExists) {
			// A concurrent dispatcher won the insert; loop to re-read its row.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create pending result: %w", err)
		}

		if err := s.publish(ctx, created, req); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "generation dispatched",
			"id", created.ID,
			"event_name", created.EventName,
			"target", target.Key(),
			"force", req.Force,
		)
		return &model.DispatchResult{Result: created}, nil
	}
	return nil, fmt.Errorf("dispatch %s: pending result for target changed concurrently", target.Key())
}

// findReusable returns the completed (unless force) or pending result for the target.
func (s *DispatcherService) findReusable(
	ctx context.Context,
	target model.Target,
	force bool,
) (*model.GenerationResult, error) {
	if !force {
		res, err := s.findByStatus(ctx, target, model.GenerationStatusCompleted)
		if err != nil || res != nil {
			return res, err
		}
	}
	return s.findByStatus(ctx, target, model.GenerationStatusPending)
}

func (s *DispatcherService) findByStatus(
	ctx context.Context,
	target model.Target,
	status model.GenerationStatus,
) (*model.GenerationResult, error) {
	res, err := s.results.FindByTarget(ctx, core.FindByTargetParams{Target: target, Status: status})
	if errors.Is(err, model.ErrResultNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s result: %w", status, err)
	}
	return res, nil
}

func (s *DispatcherService) publish(ctx context.Context, res *model.GenerationResult, req model.DispatchRequest) error {
	_, err := s.publisher.Publish(ctx, model.JobStartEvent{
		ID:         res.ID,
		EventName:  res.EventName,
		ObjectType: res.ObjectType,
		ObjectID:   res.ObjectID,
		ObjectKey:  res.ObjectKey,
		Data:       req.Data,
	})
	if err != nil {
		// The pending row is left in place; retention removes it.
		s.logger.ErrorContext(ctx, "failed to publish job start event",
			"id", res.ID,
			"event_name", res.EventName,
			"error", err,
		)
		return fmt.Errorf("publish job start event: %w", err)
	}
	return nil
}

// acquireLock takes the per-target dispatch lock. When another dispatcher holds
// it, acquireLock waits up to LockWait for either the lock or that dispatcher's
// pending row. Lock failures never fail the dispatch.
func (s *DispatcherService) acquireLock(
	ctx context.Context,
	target model.Target,
) (func(), *model.GenerationResult, error) {
	noop := func() {}
	if s.lock == nil {
		return noop, nil, nil
	}

	key := target.Key()
	token := uuid.NewString()

	tryLock := func() bool {
		ok, err := s.lock.TryLock(ctx, target, token, s.config.LockTTL)
		if err != nil {
			s.logger.WarnContext(ctx, "dispatch lock unavailable, relying on database", "key", key, "error", err)
			return true
		}
		return ok
	}
	release := func() {
		// Detached so a cancelled request still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if _, err := s.lock.Unlock(releaseCtx, target, token); err != nil {
			s.logger.WarnContext(ctx, "failed to release dispatch lock", "key", key, "error", err)
		}
	}

	if tryLock() {
		return release, nil, nil
	}

	deadline := time.NewTimer(s.config.LockWait)
	defer deadline.Stop()
	ticker := time.NewTicker(dispatchPollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-deadline.C:
			s.logger.DebugContext(ctx, "dispatch lock wait elapsed", "key", key)
			return noop, nil, nil
		case <-ticker.C:
			pending, err := s.findByStatus(ctx, target, model.GenerationStatusPending)
			if err != nil {
				return nil, nil, err
			}
			if pending != nil {
				return noop, pending, nil
			}
			if tryLock() {
				return release, nil, nil
			}
		}
	}
}
