package obs

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ragcore/ragcore"

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Metrics holds every OTel metric instrument the RAG core records. Every
// field is an OTel instrument, which is itself safe for concurrent use.
type Metrics struct {
	IngestDuration    metric.Float64Histogram
	RetrievalDuration metric.Float64Histogram
	WorkflowDuration  metric.Float64Histogram
	HTTPDuration      metric.Float64Histogram

	ModelRequests metric.Int64Counter
	ModelErrors   metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter
	ActiveWorkflows metric.Int64UpDownCounter
}

// NewMetrics creates every instrument against mp, the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.IngestDuration, err = m.Float64Histogram("ragcore.ingest.duration",
		metric.WithDescription("Document ingestion pipeline latency."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("ragcore.retrieval.duration",
		metric.WithDescription("Retrieval engine Search latency by mode."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.WorkflowDuration, err = m.Float64Histogram("ragcore.agent.workflow.duration",
		metric.WithDescription("Agent workflow execution latency by workflow name."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.HTTPDuration, err = m.Float64Histogram("ragcore.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.ModelRequests, err = m.Int64Counter("ragcore.model.requests",
		metric.WithDescription("Model-serving backend calls by backend, kind and status.")); err != nil {
		return nil, err
	}
	if met.ModelErrors, err = m.Int64Counter("ragcore.model.errors",
		metric.WithDescription("Model-serving backend failures by backend and kind.")); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("ragcore.conversation.active_sessions",
		metric.WithDescription("Conversation sessions currently held in the registry.")); err != nil {
		return nil, err
	}
	if met.ActiveWorkflows, err = m.Int64UpDownCounter("ragcore.agent.active_workflows",
		metric.WithDescription("Agent workflow runs currently in flight.")); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the package-level Metrics instance built against the
// global MeterProvider, creating it on first call.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("obs: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordIngest records one ingestion pipeline run.
func (m *Metrics) RecordIngest(ctx context.Context, start time.Time, status string) {
	if m == nil {
		return
	}
	m.IngestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordRetrieval records one Search call.
func (m *Metrics) RecordRetrieval(ctx context.Context, start time.Time, mode string) {
	if m == nil {
		return
	}
	m.RetrievalDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordWorkflow records one agent workflow run.
func (m *Metrics) RecordWorkflow(ctx context.Context, start time.Time, workflow, status string) {
	if m == nil {
		return
	}
	m.WorkflowDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("workflow", workflow), attribute.String("status", status)))
}

// RecordModelCall records one model-serving backend call.
func (m *Metrics) RecordModelCall(ctx context.Context, backend, kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.ModelErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend), attribute.String("kind", kind)))
	}
	m.ModelRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend), attribute.String("kind", kind), attribute.String("status", status)))
}

// SessionOpened/SessionClosed track the conversation session gauge.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

// WorkflowStarted/WorkflowFinished track the in-flight workflow gauge.
func (m *Metrics) WorkflowStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveWorkflows.Add(ctx, 1)
}

func (m *Metrics) WorkflowFinished(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveWorkflows.Add(ctx, -1)
}
