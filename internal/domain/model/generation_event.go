package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GenerationEventStatus represents the delivery state of a queued job-start event.
type GenerationEventStatus string

const (
	// GenerationEventStatusPending indicates the event is waiting for a worker.
	GenerationEventStatusPending GenerationEventStatus = "pending"
	// GenerationEventStatusRunning indicates a worker holds a lease on the event.
	GenerationEventStatusRunning GenerationEventStatus = "running"
	// GenerationEventStatusDone indicates the event was processed to a terminal result.
	GenerationEventStatusDone GenerationEventStatus = "done"
	// GenerationEventStatusDead indicates delivery attempts were exhausted.
	GenerationEventStatusDead GenerationEventStatus = "dead"
)

// ErrNoEventsAvailable is returned when no queued events are available for reservation.
var ErrNoEventsAvailable = errors.New("no generation events available")

// Valid returns true if the status is one of the known values.
func (s GenerationEventStatus) Valid() bool {
	switch s {
	case GenerationEventStatusPending, GenerationEventStatusRunning,
		GenerationEventStatusDone, GenerationEventStatusDead:
		return true
	}
	return false
}

// GenerationEvent is a durable queue entry carrying a JobStartEvent.
type GenerationEvent struct {
	ID             string                `json:"id"                         db:"id"`
	ResultID       string                `json:"result_id"                  db:"result_id"`
	EventName      string                `json:"event_name"                 db:"event_name"`
	Payload        json.RawMessage       `json:"payload"                    db:"payload"`
	Status         GenerationEventStatus `json:"status"                     db:"status"`
	Attempts       int                   `json:"attempts"                   db:"attempts"`
	MaxAttempts    int                   `json:"max_attempts"               db:"max_attempts"`
	LastError      *string               `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time            `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	ScheduledAt    time.Time             `json:"scheduled_at"               db:"scheduled_at"`
	CreatedAt      time.Time             `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"                 db:"updated_at"`
}

// StartEvent decodes the carried job-start event.
func (e *GenerationEvent) StartEvent() (JobStartEvent, error) {
	var evt JobStartEvent
	if e == nil {
		return evt, errors.New("generation event is nil")
	}
	if err := json.Unmarshal(e.Payload, &evt); err != nil {
		return evt, fmt.Errorf("decode job start event %s: %w", e.ID, err)
	}
	if evt.ID == "" {
		evt.ID = e.ResultID
	}
	return evt, nil
}
