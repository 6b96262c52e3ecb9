package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/data/pgxutil"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
)

// GenerationEventChannel is the LISTEN/NOTIFY channel signalled on every publish and nack.
const GenerationEventChannel = "generation_event_added"

const (
	defaultEventMaxAttempts = 5
	defaultEventRetryDelay  = 5 * time.Second
	maxEventRetryDelay      = 5 * time.Minute
)

const generationEventColumns = `
  id::text AS id,
  result_id,
  event_name,
  payload,
  status,
  attempts,
  max_attempts,
  last_error,
  lease_expires_at,
  scheduled_at,
  created_at,
  updated_at
`

// GenerationEventRepoOptions configures a GenerationEventRepo.
type GenerationEventRepoOptions struct {
	// MaxAttempts bounds deliveries before an event is marked dead.
	MaxAttempts int
	// RetryDelay is the base delay before a nacked event is redelivered; it doubles per attempt.
	RetryDelay time.Duration
	Clock      Clock
	Logger     *slog.Logger
}

// GenerationEventRepo is the durable job-start event queue.
type GenerationEventRepo struct {
	DB          *sql.DB
	maxAttempts int
	retryDelay  time.Duration
	clock       Clock
	logger      *slog.Logger
}

var (
	_ core.EventPublisher = (*GenerationEventRepo)(nil)
	_ core.EventQueue     = (*GenerationEventRepo)(nil)
)

// NewGenerationEventRepo creates a GenerationEventRepo.
func NewGenerationEventRepo(db *sql.DB, opts GenerationEventRepoOptions) *GenerationEventRepo {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultEventMaxAttempts
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultEventRetryDelay
	}
	return &GenerationEventRepo{
		DB:          db,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		clock:       clock,
		logger:      logger.With("component", "generation_event_repo"),
	}
}

// Publish enqueues a job-start event and notifies listening executors in the same transaction.
func (r *GenerationEventRepo) Publish(ctx context.Context, evt model.JobStartEvent) (*model.GenerationEvent, error) {
	if evt.ID == "" {
		return nil, errors.New("job start event id is required")
	}
	if evt.EventName == "" {
		return nil, errors.New("job start event name is required")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal job start event: %w", err)
	}

	var out *model.GenerationEvent
	err = pgxutil.WithTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		now := r.clock.Now().UTC()
		rows, qerr := tx.Query(ctx, `
			INSERT INTO generation_events (result_id, event_name, payload, max_attempts, scheduled_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5, $5)
			RETURNING `+generationEventColumns,
			evt.ID, evt.EventName, payload, r.maxAttempts, now,
		)
		if qerr != nil {
			return fmt.Errorf("insert generation event: %w", qerr)
		}
		e, cerr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.GenerationEvent])
		if cerr != nil {
			return fmt.Errorf("collect generation event: %w", cerr)
		}
		if _, nerr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, GenerationEventChannel, e.ID); nerr != nil {
			return fmt.Errorf("send generation event notification: %w", nerr)
		}
		out = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const reserveNextEventSQL = `
  WITH cte AS (
    SELECT id FROM generation_events
    WHERE status = 'pending'
      AND scheduled_at <= $1
      AND (cardinality($2::text[]) = 0 OR event_name = ANY($2::text[]))
    ORDER BY scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE generation_events e
  SET status = 'running',
      attempts = e.attempts + 1,
      lease_expires_at = $3,
      updated_at = $1
  FROM cte
  WHERE e.id = cte.id
  RETURNING e.id::text AS id, e.result_id, e.event_name, e.payload, e.status, e.attempts, e.max_attempts,
            e.last_error, e.lease_expires_at, e.scheduled_at, e.created_at, e.updated_at`

// ReserveNext leases the oldest due event whose name is in EventNames (all names when empty).
// Returns model.ErrNoEventsAvailable when nothing is due.
func (r *GenerationEventRepo) ReserveNext(
	ctx context.Context,
	params core.ReserveEventParams,
) (*model.GenerationEvent, error) {
	if params.Lease <= 0 {
		return nil, errors.New("lease must be positive")
	}
	if _, err := r.requeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired events: %w", err)
	}

	names := params.EventNames
	if names == nil {
		names = []string{}
	}

	var out *model.GenerationEvent
	err := pgxutil.WithTx(ctx, r.DB, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		now := r.clock.Now().UTC()
		rows, qerr := tx.Query(ctx, reserveNextEventSQL, now, names, now.Add(params.Lease))
		if qerr != nil {
			return fmt.Errorf("reserve event: %w", qerr)
		}
		e, cerr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.GenerationEvent])
		if errors.Is(cerr, pgx.ErrNoRows) {
			return model.ErrNoEventsAvailable
		}
		if cerr != nil {
			return fmt.Errorf("reserve event: %w", cerr)
		}
		out = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// requeueExpired returns running events whose lease lapsed to pending, or to dead
// once their attempts are exhausted.
func (r *GenerationEventRepo) requeueExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	_, err := pgxutil.WithLockedTx(ctx, r.DB, lockRequeueEvents, func(tx pgx.Tx) error {
		now := r.clock.Now().UTC()
		tag, err := tx.Exec(ctx, `
			UPDATE generation_events
			SET status = CASE WHEN attempts >= max_attempts THEN 'dead' ELSE 'pending' END,
			    last_error = COALESCE(last_error, 'lease expired'),
			    lease_expires_at = NULL,
			    updated_at = $1
			WHERE status = 'running'
			  AND lease_expires_at IS NOT NULL
			  AND lease_expires_at < $1
		`, now)
		if err != nil {
			return fmt.Errorf("requeue expired: %w", err)
		}
		rowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if rowsAffected > 0 {
		r.logger.InfoContext(ctx, "requeued expired generation events", "count", rowsAffected)
	}
	return rowsAffected, nil
}

// Heartbeat extends the lease on a running event. It returns false when the
// event is no longer running.
func (r *GenerationEventRepo) Heartbeat(ctx context.Context, id string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		return false, errors.New("lease must be positive")
	}
	now := r.clock.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE generation_events
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, now.Add(lease), now)
	if err != nil {
		return false, fmt.Errorf("heartbeat event: %w", err)
	}
	return affectedOne(res)
}

// Ack marks a running event as done.
func (r *GenerationEventRepo) Ack(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE generation_events
		SET status = 'done',
		    lease_expires_at = NULL,
		    updated_at = $2
		WHERE id = $1 AND status = 'running'
	`, id, r.clock.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("ack event: %w", err)
	}
	return affectedOne(res)
}

// Nack releases a running event for redelivery after an exponential delay, or marks
// it dead once max_attempts deliveries have been made.
func (r *GenerationEventRepo) Nack(ctx context.Context, id, errMsg string) (bool, error) {
	now := r.clock.Now().UTC()

	var status string
	var attempts int
	err := r.DB.QueryRowContext(ctx, `
		UPDATE generation_events
		SET status = CASE WHEN attempts >= max_attempts THEN 'dead' ELSE 'pending' END,
		    last_error = $2,
		    lease_expires_at = NULL,
		    scheduled_at = $3::timestamptz + make_interval(secs => LEAST($4::float8 * power(2, GREATEST(attempts - 1, 0)), $5::float8)),
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
		RETURNING status, attempts
	`, id, errMsg, now, r.retryDelay.Seconds(), maxEventRetryDelay.Seconds()).Scan(&status, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("nack event: %w", err)
	}

	if status == string(model.GenerationEventStatusDead) {
		r.logger.WarnContext(ctx, "generation event exhausted attempts",
			"event_id", id,
			"attempts", attempts,
			"error", errMsg,
		)
		return true, nil
	}
	if _, nerr := r.DB.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, GenerationEventChannel, id); nerr != nil {
		r.logger.WarnContext(ctx, "notify after nack failed", "event_id", id, "error", nerr)
	}
	return true, nil
}

// WaitForNotification blocks until an event is published or ctx is done.
func (r *GenerationEventRepo) WaitForNotification(ctx context.Context) error {
	return pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		quoted := pgx.Identifier{GenerationEventChannel}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+quoted); err != nil {
			return fmt.Errorf("listen %s: %w", GenerationEventChannel, err)
		}
		defer func() { _, _ = conn.Exec(context.Background(), "UNLISTEN "+quoted) }()

		_, err := conn.WaitForNotification(ctx)
		return err
	})
}

// Get returns a queued event by id.
func (r *GenerationEventRepo) Get(ctx context.Context, id string) (*model.GenerationEvent, error) {
	out, err := pgxutil.CollectOne[model.GenerationEvent](ctx, r.DB,
		`SELECT `+generationEventColumns+` FROM generation_events WHERE id = $1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGenerationEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generation event: %w", err)
	}
	return out, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
