// Package metrics standardises the metric names and tags emitted by the pipeline.
package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/buidl-renaissance/collector-quest-sub003/internal/observability/errors"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultCreated = "created"
	ResultReused  = "reused"
	ResultSkipped = "skipped"
)

// Transition constants for terminal result writes.
const (
	TransitionCompleted = "completed"
	TransitionFailed    = "failed"
	TransitionCancelled = "cancelled"
)

// DispatchMetric describes one Dispatch call.
type DispatchMetric struct {
	EventName string
	Result    string
	Duration  time.Duration
	Err       error
}

// EmitDispatch emits generation.dispatch and its duration.
func EmitDispatch(sink statsd.Sink, in DispatchMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"event_name": in.EventName, "result": in.Result}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("generation.dispatch", 1, tags)
	if in.Duration > 0 {
		sink.Timing("generation.dispatch.duration", in.Duration, CloneTags(tags))
	}
}

// StepMetric describes one executed (or ledger-skipped) workflow step.
type StepMetric struct {
	EventName string
	Step      string
	Result    string
	Attempts  int
	Duration  time.Duration
	Err       error
}

// EmitStep emits generation.step and its duration. Chunk indices are expected to be
// stripped from Step by the caller to keep tag cardinality bounded.
func EmitStep(sink statsd.Sink, in StepMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"event_name": in.EventName,
		"step":       in.Step,
		"result":     in.Result,
		"attempts":   strconv.Itoa(in.Attempts),
	}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("generation.step", 1, tags)
	if in.Duration > 0 {
		sink.Timing("generation.step.duration", in.Duration, CloneTags(tags))
	}
}

// TransitionMetric describes a terminal result write.
type TransitionMetric struct {
	EventName  string
	Transition string
	Duration   time.Duration
}

// EmitTransition emits generation.transition and the total job duration.
func EmitTransition(sink statsd.Sink, in TransitionMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"event_name": in.EventName, "transition": in.Transition}
	sink.Count("generation.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("generation.duration", in.Duration, CloneTags(tags))
	}
}

// Delivery outcomes for job-start events.
const (
	DeliveryAcked     = "acked"
	DeliveryNacked    = "nacked"
	DeliveryDead      = "dead"
	DeliveryMalformed = "malformed"
)

// DeliveryMetric describes the outcome of processing one reserved event.
type DeliveryMetric struct {
	EventName string
	Outcome   string
	Attempt   int
	Duration  time.Duration
	Err       error
}

// EmitDelivery emits executor.delivery and its duration.
func EmitDelivery(sink statsd.Sink, in DeliveryMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if in.Outcome != DeliveryAcked {
		result = ResultError
	}
	tags := map[string]string{"event_name": in.EventName, "outcome": in.Outcome, "result": result}
	addErrorClass(tags, result, in.Err)

	sink.Count("executor.delivery", 1, tags)
	if in.Attempt > 1 {
		sink.Count("executor.redelivery", 1, map[string]string{"event_name": in.EventName})
	}
	if in.Duration > 0 {
		sink.Timing("executor.delivery.duration", in.Duration, CloneTags(tags))
	}
}

// SweepMetric describes one retention sweep over a table.
type SweepMetric struct {
	Table    string
	Deleted  int64
	Duration time.Duration
	Err      error
}

// EmitSweep emits sweeper.run and sweeper.deleted.
func EmitSweep(sink statsd.Sink, in SweepMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Deleted == 0:
		result = ResultNoop
	}
	tags := map[string]string{"table": in.Table, "result": result}
	addErrorClass(tags, result, in.Err)

	sink.Count("sweeper.run", 1, tags)
	if in.Deleted > 0 {
		sink.Count("sweeper.deleted", in.Deleted, map[string]string{"table": in.Table})
	}
	if in.Duration > 0 {
		sink.Timing("sweeper.duration", in.Duration, CloneTags(tags))
	}
}

func addErrorClass(tags map[string]string, result string, err error) {
	if err == nil || result != ResultError {
		return
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
