package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Services depend on these interfaces; the data layer provides implementations.

// GenerationResultRepository defines the durable result store contract.
//
// Mutating methods only touch pending rows. UpdateProgress, Complete, Fail and
// SetEventID return (nil, nil) when the row is missing or already terminal.
type GenerationResultRepository interface {
	CreatePending(ctx context.Context, params model.CreatePendingParams) (*model.GenerationResult, error)
	UpdateProgress(ctx context.Context, id string, update model.ProgressUpdate) (*model.GenerationResult, error)
	Complete(ctx context.Context, id string, payload json.RawMessage) (*model.GenerationResult, error)
	Fail(ctx context.Context, id, errMsg string) (*model.GenerationResult, error)
	Get(ctx context.Context, id string) (*model.GenerationResult, error)
	FindByTarget(ctx context.Context, params FindByTargetParams) (*model.GenerationResult, error)
	SetEventID(ctx context.Context, id, eventID string) (*model.GenerationResult, error)
	RequestCancel(ctx context.Context, id string) (*model.GenerationResult, error)
}

// FindByTargetParams groups parameters for FindByTarget.
type FindByTargetParams struct {
	Target model.Target
	Status model.GenerationStatus
}

// EventPublisher emits job-start events for newly created results.
type EventPublisher interface {
	Publish(ctx context.Context, evt model.JobStartEvent) (*model.GenerationEvent, error)
}

// EventQueue is the consumer side of the durable job-start event queue.
type EventQueue interface {
	ReserveNext(ctx context.Context, params ReserveEventParams) (*model.GenerationEvent, error)
	Heartbeat(ctx context.Context, id string, lease time.Duration) (bool, error)
	Ack(ctx context.Context, id string) (bool, error)
	Nack(ctx context.Context, id, errMsg string) (bool, error)
	WaitForNotification(ctx context.Context) error
}

// ReserveEventParams groups parameters for EventQueue.ReserveNext.
type ReserveEventParams struct {
	EventNames []string
	Lease      time.Duration
}

// SweepRepository removes expired pipeline rows.
// Each call deletes at most BatchSize rows and returns the count removed.
type SweepRepository interface {
	DeleteExpiredResults(ctx context.Context, params SweepParams) (int64, error)
	DeleteFinishedEvents(ctx context.Context, params SweepParams) (int64, error)
}

// SweepParams groups parameters for sweep operations.
type SweepParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// StepLedger records completed steps per job so redelivered jobs skip them.
type StepLedger interface {
	// Lookup returns the recorded output and true when the step already completed for the job.
	Lookup(ctx context.Context, jobID, step string) (json.RawMessage, bool, error)
	Record(ctx context.Context, jobID, step string, output json.RawMessage) error
	Forget(ctx context.Context, jobID string) error
}
