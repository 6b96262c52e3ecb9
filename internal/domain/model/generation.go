// Package model defines the core data types shared by the generation pipeline.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// GenerationStatus represents the lifecycle state of a generation result.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type GenerationStatus string

const (
	// GenerationStatusPending indicates the job has been dispatched and has not finished.
	GenerationStatusPending GenerationStatus = "pending"
	// GenerationStatusCompleted indicates the job finished and result holds its payload.
	GenerationStatusCompleted GenerationStatus = "completed"
	// GenerationStatusError indicates the job failed permanently and error holds the reason.
	GenerationStatusError GenerationStatus = "error"
)

var (
	// ErrResultNotFound is returned when no generation result exists for an id or target.
	ErrResultNotFound = errors.New("generation result not found")
	// ErrResultExists is returned when creating a result whose id is already taken.
	ErrResultExists = errors.New("generation result already exists")
	// ErrPendingTargetExists is returned when a pending result already exists for the target.
	ErrPendingTargetExists = errors.New("pending generation already exists for target")
	// ErrResultTerminal is returned when an operation requires a pending result.
	ErrResultTerminal = errors.New("generation result is already terminal")
	// ErrInvalidDispatchRequest wraps validation failures for dispatch requests.
	ErrInvalidDispatchRequest = errors.New("invalid dispatch request")
	// ErrUnknownEvent is returned when no workflow is registered for an event name.
	ErrUnknownEvent = errors.New("unknown generation event")
)

// UnmarshalText implements encoding.TextUnmarshaler for GenerationStatus.
func (s *GenerationStatus) UnmarshalText(text []byte) error {
	v := GenerationStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid GenerationStatus: %q", v)
	}
	*s = v
	return nil
}

// Valid returns true if the status is one of the known values.
func (s GenerationStatus) Valid() bool {
	return s == GenerationStatusPending || s == GenerationStatusCompleted || s == GenerationStatusError
}

// Terminal reports whether no further transition may occur from this status.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusError
}

// Target identifies the logical object a generation is produced for.
// The triple is the dedup key: at most one pending result exists per target.
type Target struct {
	ObjectType string `json:"objectType"`
	ObjectID   string `json:"objectId"`
	ObjectKey  string `json:"objectKey"`
}

// Key returns a stable string form of the target suitable for lock and cache keys.
func (t Target) Key() string {
	return t.ObjectType + ":" + t.ObjectID + ":" + t.ObjectKey
}

// Validate ensures every component of the target is present.
func (t Target) Validate() error {
	switch {
	case strings.TrimSpace(t.ObjectType) == "":
		return errors.New("object type is required")
	case strings.TrimSpace(t.ObjectID) == "":
		return errors.New("object id is required")
	case strings.TrimSpace(t.ObjectKey) == "":
		return errors.New("object key is required")
	}
	return nil
}

// GenerationResult is the durable record of one generation job.
type GenerationResult struct {
	ID              string           `json:"id"                        db:"id"`
	EventName       string           `json:"eventName"                 db:"event_name"`
	EventID         *string          `json:"eventId,omitempty"         db:"event_id"`
	Status          GenerationStatus `json:"status"                    db:"status"`
	Step            *string          `json:"step,omitempty"            db:"step"`
	Message         *string          `json:"message,omitempty"         db:"message"`
	Result          json.RawMessage  `json:"result,omitempty"          db:"result"`
	Error           *string          `json:"error,omitempty"           db:"error"`
	ObjectType      string           `json:"objectType"                db:"object_type"`
	ObjectID        string           `json:"objectId"                  db:"object_id"`
	ObjectKey       string           `json:"objectKey"                 db:"object_key"`
	CancelRequested bool             `json:"cancelRequested,omitempty" db:"cancel_requested"`
	CreatedAt       time.Time        `json:"createdAt"                 db:"created_at"`
	UpdatedAt       time.Time        `json:"updatedAt"                 db:"updated_at"`
}

// Target returns the dedup key of the result.
func (r *GenerationResult) Target() Target {
	return Target{ObjectType: r.ObjectType, ObjectID: r.ObjectID, ObjectKey: r.ObjectKey}
}

// IsTerminal reports whether the result has reached completed or error.
func (r *GenerationResult) IsTerminal() bool {
	return r != nil && r.Status.Terminal()
}

// CreatePendingParams groups the fields needed to create a pending result.
type CreatePendingParams struct {
	ID        string
	EventName string
	Target    Target
}

// ProgressUpdate is the snapshot written after each completed step.
type ProgressUpdate struct {
	Step    string
	Message string
	// Payload replaces the stored result when non-empty.
	Payload json.RawMessage
}

// DispatchRequest asks the dispatcher to start (or reuse) a generation for a target.
type DispatchRequest struct {
	EventName  string          `json:"eventName"       validate:"required,max=128"`
	ObjectType string          `json:"objectType"      validate:"required,max=128"`
	ObjectID   string          `json:"objectId"        validate:"required,max=256"`
	ObjectKey  string          `json:"objectKey"       validate:"required,max=128"`
	Data       json.RawMessage `json:"data,omitempty"`
	// Force skips reuse of a completed result. A pending result is still reused.
	Force bool `json:"force,omitempty"`
}

var requestValidator = validator.New()

// Normalize trims surrounding whitespace from identifying fields.
func (r *DispatchRequest) Normalize() {
	r.EventName = strings.TrimSpace(r.EventName)
	r.ObjectType = strings.TrimSpace(r.ObjectType)
	r.ObjectID = strings.TrimSpace(r.ObjectID)
	r.ObjectKey = strings.TrimSpace(r.ObjectKey)
}

// Validate checks the request against its struct tags.
func (r *DispatchRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: request is required", ErrInvalidDispatchRequest)
	}
	if err := requestValidator.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidDispatchRequest, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %w", ErrInvalidDispatchRequest, err)
	}
	if len(r.Data) > 0 && !json.Valid(r.Data) {
		return fmt.Errorf("%w: data must be valid JSON", ErrInvalidDispatchRequest)
	}
	return nil
}

// Target returns the dedup key addressed by the request.
func (r *DispatchRequest) Target() Target {
	return Target{ObjectType: r.ObjectType, ObjectID: r.ObjectID, ObjectKey: r.ObjectKey}
}

// DispatchResult is returned by the dispatcher.
type DispatchResult struct {
	Result *GenerationResult
	// Reused is true when an existing pending or completed result was returned.
	Reused bool
}

// JobStartEvent is emitted once per newly created result and consumed by the executor.
type JobStartEvent struct {
	ID         string          `json:"id"`
	EventName  string          `json:"eventName"`
	ObjectType string          `json:"objectType"`
	ObjectID   string          `json:"objectId"`
	ObjectKey  string          `json:"objectKey"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Target returns the dedup key carried by the event.
func (e JobStartEvent) Target() Target {
	return Target{ObjectType: e.ObjectType, ObjectID: e.ObjectID, ObjectKey: e.ObjectKey}
}
