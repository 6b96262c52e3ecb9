package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
)

const (
	stepLedgerKeyPrefix     = "genpipe:ledger:"
	defaultStepLedgerTTL    = time.Hour
	stepLedgerEmptySentinel = "null"
)

// RedisStepLedger stores completed step outputs per job in a Redis hash
// (genpipe:ledger:<jobID>, field = step name). The hash expires with the
// result retention window.
type RedisStepLedger struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ core.StepLedger = (*RedisStepLedger)(nil)

// NewRedisStepLedger creates a ledger whose entries live for ttl after the last record.
func NewRedisStepLedger(client redis.UniversalClient, ttl time.Duration) *RedisStepLedger {
	if ttl <= 0 {
		ttl = defaultStepLedgerTTL
	}
	return &RedisStepLedger{client: client, ttl: ttl}
}

func stepLedgerKey(jobID string) string {
	return stepLedgerKeyPrefix + jobID
}

// Lookup returns the recorded output for a completed step.
func (l *RedisStepLedger) Lookup(ctx context.Context, jobID, step string) (json.RawMessage, bool, error) {
	if jobID == "" || step == "" {
		return nil, false, ErrStepLedgerKey
	}

	val, err := l.client.HGet(ctx, stepLedgerKey(jobID), step).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis hget: %w", err)
	}
	return json.RawMessage(val), true, nil
}

// Record stores the output of a completed step and refreshes the hash TTL.
func (l *RedisStepLedger) Record(ctx context.Context, jobID, step string, output json.RawMessage) error {
	if jobID == "" || step == "" {
		return ErrStepLedgerKey
	}
	if len(output) == 0 {
		output = json.RawMessage(stepLedgerEmptySentinel)
	}

	key := stepLedgerKey(jobID)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, step, []byte(output))
		pipe.Expire(ctx, key, l.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record step: %w", err)
	}
	return nil
}

// Forget drops every recorded step for the job.
func (l *RedisStepLedger) Forget(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrStepLedgerKey
	}
	if err := l.client.Del(ctx, stepLedgerKey(jobID)).Err(); err != nil {
		return fmt.Errorf("redis del ledger: %w", err)
	}
	return nil
}
