// Package failurenotifier fans out generation failure notifications to the configured sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// SkipErrors lists result error messages that never notify, e.g. "cancelled".
	SkipErrors []string
	// EventNames limits notifications to these event names. Empty allows all.
	EventNames []string
	// Reasons limits notifications to these failure reasons. Empty allows all.
	Reasons []string
	// Now stamps OccurredAt when the caller left it zero.
	Now func() time.Time
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	skip    set
	events  set
	reasons set
	now     func() time.Time
}

type set map[string]struct{}

func newSet(items []string) set {
	if len(items) == 0 {
		return nil
	}
	s := make(set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

// allows reports whether v passes an allowlist; a nil set allows everything.
func (s set) allows(v string) bool {
	return s == nil || s.has(v)
}

// NewService constructs a failure notifier. Nil sinks are dropped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:  logger.With("component", "failure_notifier"),
		sinks:   sinks,
		skip:    newSet(opts.SkipErrors),
		events:  newSet(opts.EventNames),
		reasons: newSet(opts.Reasons),
		now:     now,
	}
}

// NotifyFailure delivers payload to every sink concurrently and waits for them.
// Sink errors are logged, never returned.
func (s *Service) NotifyFailure(ctx context.Context, payload notify.FailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}
	if payload.Reason == "" {
		payload.Reason = notify.ReasonFailed
	}
	if reason := s.filtered(payload); reason != "" {
		s.logger.DebugContext(ctx, "skipping failure notification",
			"result_id", payload.ResultID,
			"event_name", payload.EventName,
			"filter", reason,
		)
		return
	}
	if payload.Severity == "" {
		payload.Severity = severityFor(payload.Reason)
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.now().UTC()
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"result_id", payload.ResultID,
					"event_name", payload.EventName,
					"reason", payload.Reason,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// filtered names the filter that drops payload, or "" when it should be sent.
func (s *Service) filtered(p notify.FailurePayload) string {
	switch {
	case s.skip.has(p.Error):
		return "error"
	case !s.events.allows(p.EventName):
		return "event_name"
	case !s.reasons.allows(p.Reason):
		return "reason"
	default:
		return ""
	}
}

// severityFor pages dead-lettered jobs as critical and workflow failures as warnings.
func severityFor(reason string) string {
	if reason == notify.ReasonDeadLettered {
		return notify.SeverityCritical
	}
	return notify.SeverityWarning
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
