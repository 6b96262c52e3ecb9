package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
)

// DefaultSweepBatchSize is used when ResultServiceOptions.BatchSize is unset.
const DefaultSweepBatchSize = 1000

// ResultServiceOptions groups dependencies for ResultService.
type ResultServiceOptions struct {
	Repo      core.GenerationResultRepository // Required
	Sweeper   core.SweepRepository            // Optional: required for SweepExpired
	BatchSize int                             // Optional: rows per sweep statement
	Logger    *slog.Logger                    // Optional
}

// ResultService exposes reads, cancellation and retention over the result store.
type ResultService struct {
	repo      core.GenerationResultRepository
	sweeper   core.SweepRepository
	batchSize int
	logger    *slog.Logger
}

// NewResultService constructs a new ResultService.
func NewResultService(opts ResultServiceOptions) (*ResultService, error) {
	if opts.Repo == nil {
		return nil, errors.New("GenerationResultRepository is required")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultSweepBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultService{
		repo:      opts.Repo,
		sweeper:   opts.Sweeper,
		batchSize: batch,
		logger:    logger.With("component", "result_service"),
	}, nil
}

// Get returns the result for id or model.ErrResultNotFound.
func (s *ResultService) Get(ctx context.Context, id string) (*model.GenerationResult, error) {
	if id == "" {
		return nil, model.ErrResultNotFound
	}
	return s.repo.Get(ctx, id)
}

// RequestCancel flags a pending result for cancellation. The executor observes
// the flag before its next step and fails the job with "cancelled".
//
// Returns model.ErrResultNotFound for unknown ids and model.ErrResultTerminal
// when the result already finished.
func (s *ResultService) RequestCancel(ctx context.Context, id string) (*model.GenerationResult, error) {
	res, err := s.repo.RequestCancel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("request cancel: %w", err)
	}
	if res != nil {
		s.logger.InfoContext(ctx, "cancellation requested", "id", id, "event_name", res.EventName)
		return res, nil
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return current, model.ErrResultTerminal
	}
	// Lost a race with a terminal write between the update and the read.
	return current, nil
}

// IsCancelRequested reports whether cancellation was requested for a pending result.
// Missing results count as cancelled so orphaned work stops.
func (s *ResultService) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	res, err := s.repo.Get(ctx, id)
	if errors.Is(err, model.ErrResultNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return res.CancelRequested, nil
}

// SweepExpired deletes results created more than maxAge ago, regardless of
// status, in batches until none remain. Queued events cascade.
func (s *ResultService) SweepExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s.sweeper == nil {
		return 0, errors.New("sweep repository is not configured")
	}
	params := core.SweepParams{MaxAge: maxAge, BatchSize: s.batchSize}
	total, err := drainBatches(ctx, func(ctx context.Context) (int64, error) {
		return s.sweeper.DeleteExpiredResults(ctx, params)
	})
	if total > 0 {
		s.logger.InfoContext(ctx, "swept expired results", "count", total, "max_age", maxAge)
	}
	return total, err
}

// drainBatches calls fn until it reports zero affected rows.
func drainBatches(ctx context.Context, fn func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		count, err := fn(ctx)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}
