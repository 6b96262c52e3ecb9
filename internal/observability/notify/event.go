// Package notify defines the failure notifications fanned out to chat and paging sinks.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Failure reasons.
const (
	// ReasonFailed is a job whose workflow finalized the result as error.
	ReasonFailed = "failed"
	// ReasonDeadLettered is a job-start event that exhausted its delivery attempts.
	ReasonDeadLettered = "dead_lettered"
)

// FailurePayload captures the data emitted for a failed generation job.
type FailurePayload struct {
	ResultID   string
	EventName  string
	ObjectType string
	ObjectID   string
	ObjectKey  string
	Reason     string
	Attempts   int
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Target renders the object the job generated for, e.g. "character/c1/portrait".
func (p FailurePayload) Target() string {
	if p.ObjectType == "" && p.ObjectID == "" && p.ObjectKey == "" {
		return ""
	}
	return p.ObjectType + "/" + p.ObjectID + "/" + p.ObjectKey
}

// Sink describes a destination capable of consuming failure notifications.
type Sink interface {
	SendFailure(ctx context.Context, payload FailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload FailurePayload) error

// SendFailure implements the Sink interface.
func (f SinkFunc) SendFailure(ctx context.Context, payload FailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
