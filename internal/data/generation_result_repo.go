package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/data/pgxutil"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
)

const (
	generationResultsPkey         = "generation_results_pkey"
	generationResultsPendingIndex = "ux_generation_results_pending_target"
)

const generationResultColumns = `
  id,
  event_name,
  event_id,
  status,
  step,
  message,
  result,
  error,
  object_type,
  object_id,
  object_key,
  cancel_requested,
  created_at,
  updated_at
`

// GenerationResultRepoOptions configures a GenerationResultRepo.
type GenerationResultRepoOptions struct {
	Clock  Clock
	Logger *slog.Logger
}

// GenerationResultRepo is the Postgres-backed result store.
// Every mutation is conditioned on status = 'pending', which keeps
// terminal rows immutable without a read-modify-write round trip.
type GenerationResultRepo struct {
	DB     *sql.DB
	clock  Clock
	logger *slog.Logger
}

var _ core.GenerationResultRepository = (*GenerationResultRepo)(nil)

// NewGenerationResultRepo creates a new GenerationResultRepo.
func NewGenerationResultRepo(db *sql.DB, opts GenerationResultRepoOptions) *GenerationResultRepo {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationResultRepo{
		DB:     db,
		clock:  clock,
		logger: logger.With("component", "generation_result_repo"),
	}
}

// CreatePending inserts a new pending result.
func (r *GenerationResultRepo) CreatePending(
	ctx context.Context,
	params model.CreatePendingParams,
) (*model.GenerationResult, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, errors.New("result id is required")
	}
	if strings.TrimSpace(params.EventName) == "" {
		return nil, errors.New("event name is required")
	}
	if err := params.Target.Validate(); err != nil {
		return nil, err
	}

	now := r.clock.Now().UTC()
	res, err := r.queryOne(ctx, `
		INSERT INTO generation_results (id, event_name, status, object_type, object_id, object_key, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, $4, $5, $6, $6)
		RETURNING `+generationResultColumns,
		params.ID, params.EventName,
		params.Target.ObjectType, params.Target.ObjectID, params.Target.ObjectKey,
		now,
	)
	if err != nil {
		if mapped := mapCreateConflict(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("create pending result: %w", err)
	}
	return res, nil
}

// UpdateProgress records the current step, message and optional partial payload.
// It returns (nil, nil) when the row is missing or already terminal.
func (r *GenerationResultRepo) UpdateProgress(
	ctx context.Context,
	id string,
	update model.ProgressUpdate,
) (*model.GenerationResult, error) {
	res, err := r.queryOne(ctx, `
		UPDATE generation_results
		SET step = $2,
		    message = $3,
		    result = COALESCE($4::jsonb, result),
		    updated_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+generationResultColumns,
		id, nullableString(update.Step), nullableString(update.Message),
		nullableJSON(update.Payload), r.clock.Now().UTC(),
	)
	return r.optionalRow(res, err, "update progress")
}

// Complete finalizes a pending result with its payload and clears any error.
func (r *GenerationResultRepo) Complete(
	ctx context.Context,
	id string,
	payload json.RawMessage,
) (*model.GenerationResult, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`null`)
	}
	res, err := r.queryOne(ctx, `
		UPDATE generation_results
		SET status = 'completed',
		    result = $2::jsonb,
		    error = NULL,
		    message = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+generationResultColumns,
		id, []byte(payload), r.clock.Now().UTC(),
	)
	return r.optionalRow(res, err, "complete result")
}

// Fail finalizes a pending result with an error description and clears any partial result.
func (r *GenerationResultRepo) Fail(ctx context.Context, id, errMsg string) (*model.GenerationResult, error) {
	res, err := r.queryOne(ctx, `
		UPDATE generation_results
		SET status = 'error',
		    error = $2,
		    result = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+generationResultColumns,
		id, errMsg, r.clock.Now().UTC(),
	)
	return r.optionalRow(res, err, "fail result")
}

// Get returns the result with the given id or model.ErrResultNotFound.
func (r *GenerationResultRepo) Get(ctx context.Context, id string) (*model.GenerationResult, error) {
	res, err := r.queryOne(ctx, `
		SELECT `+generationResultColumns+`
		FROM generation_results
		WHERE id = $1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return res, nil
}

// FindByTarget returns the most recently updated result for a target in the given status.
func (r *GenerationResultRepo) FindByTarget(
	ctx context.Context,
	params core.FindByTargetParams,
) (*model.GenerationResult, error) {
	if !params.Status.Valid() {
		return nil, fmt.Errorf("invalid generation status: %q", params.Status)
	}
	res, err := r.queryOne(ctx, `
		SELECT `+generationResultColumns+`
		FROM generation_results
		WHERE object_type = $1 AND object_id = $2 AND object_key = $3 AND status = $4
		ORDER BY updated_at DESC
		LIMIT 1`,
		params.Target.ObjectType, params.Target.ObjectID, params.Target.ObjectKey, params.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find result by target: %w", err)
	}
	return res, nil
}

// SetEventID links a pending result to the queued event that drives it.
func (r *GenerationResultRepo) SetEventID(ctx context.Context, id, eventID string) (*model.GenerationResult, error) {
	res, err := r.queryOne(ctx, `
		UPDATE generation_results
		SET event_id = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+generationResultColumns,
		id, eventID, r.clock.Now().UTC(),
	)
	return r.optionalRow(res, err, "set event id")
}

// RequestCancel flags a pending result for cancellation. The executor observes
// the flag before its next step.
func (r *GenerationResultRepo) RequestCancel(ctx context.Context, id string) (*model.GenerationResult, error) {
	res, err := r.queryOne(ctx, `
		UPDATE generation_results
		SET cancel_requested = true,
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+generationResultColumns,
		id, r.clock.Now().UTC(),
	)
	return r.optionalRow(res, err, "request cancel")
}

func (r *GenerationResultRepo) queryOne(ctx context.Context, query string, args ...any) (*model.GenerationResult, error) {
	return pgxutil.CollectOne[model.GenerationResult](ctx, r.DB, query, args...)
}

func (r *GenerationResultRepo) optionalRow(
	res *model.GenerationResult,
	err error,
	op string,
) (*model.GenerationResult, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func mapCreateConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case generationResultsPendingIndex:
		return model.ErrPendingTargetExists
	case generationResultsPkey:
		return model.ErrResultExists
	default:
		return fmt.Errorf("%w: %s", model.ErrResultExists, pgErr.ConstraintName)
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
