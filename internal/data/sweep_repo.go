package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/data/pgxutil"
)

// Maintenance work runs under transaction advisory locks in space 2000 so
// only one instance requeues or sweeps at a time.
var (
	lockSweepResults  = pgxutil.LockKey{Space: 2000, ID: 1}
	lockRequeueEvents = pgxutil.LockKey{Space: 2000, ID: 2}
	lockSweepEvents   = pgxutil.LockKey{Space: 2000, ID: 3}
)

// SweepRepo deletes expired generation results and finished queue events.
type SweepRepo struct {
	DB    *sql.DB
	clock Clock
}

var _ core.SweepRepository = (*SweepRepo)(nil)

// NewSweepRepo creates a SweepRepo. A nil clock uses SystemClock.
func NewSweepRepo(db *sql.DB, clock Clock) *SweepRepo {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SweepRepo{DB: db, clock: clock}
}

// DeleteExpiredResults deletes results of any status created before now - MaxAge.
// Processes up to BatchSize rows per call. Returns 0 without deleting when another
// instance holds the sweep lock.
func (r *SweepRepo) DeleteExpiredResults(ctx context.Context, params core.SweepParams) (int64, error) {
	if err := validateSweepParams(params); err != nil {
		return 0, err
	}
	return r.lockedDelete(ctx, lockedDeleteParams{
		lock:  lockSweepResults,
		op:    "delete expired results",
		query: `
			DELETE FROM generation_results
			WHERE id IN (
				SELECT id FROM generation_results
				WHERE created_at < $1
				ORDER BY created_at
				LIMIT $2
			)`,
		sweep: params,
	})
}

// DeleteFinishedEvents deletes done and dead queue events last touched before now - MaxAge.
func (r *SweepRepo) DeleteFinishedEvents(ctx context.Context, params core.SweepParams) (int64, error) {
	if err := validateSweepParams(params); err != nil {
		return 0, err
	}
	return r.lockedDelete(ctx, lockedDeleteParams{
		lock:  lockSweepEvents,
		op:    "delete finished events",
		query: `
			DELETE FROM generation_events
			WHERE id IN (
				SELECT id FROM generation_events
				WHERE status IN ('done', 'dead')
				  AND updated_at < $1
				ORDER BY updated_at
				LIMIT $2
			)`,
		sweep: params,
	})
}

type lockedDeleteParams struct {
	lock  pgxutil.LockKey
	op    string
	query string
	sweep core.SweepParams
}

func (r *SweepRepo) lockedDelete(ctx context.Context, p lockedDeleteParams) (int64, error) {
	var deleted int64
	_, err := pgxutil.WithLockedTx(ctx, r.DB, p.lock, func(tx pgx.Tx) error {
		cutoff := r.clock.Now().Add(-p.sweep.MaxAge).UTC()
		tag, err := tx.Exec(ctx, p.query, cutoff, p.sweep.BatchSize)
		if err != nil {
			return fmt.Errorf("%s: %w", p.op, err)
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func validateSweepParams(params core.SweepParams) error {
	if params.BatchSize <= 0 {
		return errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return errors.New("max age must be greater than zero")
	}
	return nil
}
