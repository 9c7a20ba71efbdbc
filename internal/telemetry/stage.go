// Package telemetry records per-turn latency broken down by pipeline
// stage, feeding both the run summary's LatencyStages/LatencyHotPath
// fields and the observability package's Prometheus histograms/
// OpenTelemetry spans.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nova-run/orchestrator/internal/observability"
)

// StageRecorder accumulates stage durations for a single turn. It is
// not safe for concurrent use — one recorder belongs to one turn's
// single-threaded pipeline.
type StageRecorder struct {
	tracer  *observability.Tracer
	metrics *observability.Metrics
	domain  string

	order    []string
	stages   map[string]time.Duration
	turnStart time.Time
}

// NewStageRecorder starts a recorder for one turn. metrics and tracer
// may be nil, in which case stage timing is still tracked locally but
// nothing is exported.
func NewStageRecorder(tracer *observability.Tracer, metrics *observability.Metrics, domain string) *StageRecorder {
	return &StageRecorder{
		tracer:    tracer,
		metrics:   metrics,
		domain:    domain,
		stages:    make(map[string]time.Duration),
		turnStart: time.Now(),
	}
}

// Stage runs fn, timing it under name. A span is opened/closed around
// fn when a tracer is configured.
func (r *StageRecorder) Stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, "turn."+name)
	}

	err := fn(ctx)

	elapsed := time.Since(start)
	r.record(name, elapsed)

	if span != nil {
		if err != nil {
			r.tracer.RecordError(span, err)
		}
		span.End()
	}
	return err
}

func (r *StageRecorder) record(name string, elapsed time.Duration) {
	if _, seen := r.stages[name]; !seen {
		r.order = append(r.order, name)
	}
	r.stages[name] += elapsed
}

// Stages returns a copy of the accumulated per-stage durations.
func (r *StageRecorder) Stages() map[string]time.Duration {
	out := make(map[string]time.Duration, len(r.stages))
	for k, v := range r.stages {
		out[k] = v
	}
	return out
}

// HotPath returns the name of the stage that consumed the most wall
// time, or "" if no stage has been recorded yet. Ties resolve to
// whichever stage ran first, matching the order a reader would expect
// when scanning a latency breakdown top to bottom.
func (r *StageRecorder) HotPath() string {
	var hot string
	var max time.Duration
	for _, name := range r.order {
		d := r.stages[name]
		if d > max {
			max = d
			hot = name
		}
	}
	return hot
}

// TotalElapsed returns wall time since the recorder was created.
func (r *StageRecorder) TotalElapsed() time.Duration {
	return time.Since(r.turnStart)
}

// Finish reports total turn latency to the configured metrics sink.
// Call once, after the turn's reply has been produced.
func (r *StageRecorder) Finish() {
	if r.metrics != nil {
		r.metrics.RecordTurnLatency(r.domain, r.TotalElapsed().Seconds())
	}
}
