// Package core defines the ports shared between the generation services and their adapters.
package core

import (
	"context"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
)

// DispatchLock is a short-lived cross-process mutex per dedup target. It only
// narrows the dispatch race; the pending-target unique index stays authoritative.
type DispatchLock interface {
	// TryLock takes the lock for target on behalf of token. It reports false
	// when another holder has it. A non-positive ttl is treated as one second.
	TryLock(ctx context.Context, target model.Target, token string, ttl time.Duration) (bool, error)

	// Unlock releases the lock only while token still holds it.
	Unlock(ctx context.Context, target model.Target, token string) (bool, error)
}
