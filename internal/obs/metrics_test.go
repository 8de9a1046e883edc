package obs

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordIngest_ObservesDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordIngest(context.Background(), time.Now().Add(-10*time.Millisecond), "completed")

	rm := collect(t, reader)
	if findMetric(rm, "ragcore.ingest.duration") == nil {
		t.Fatal("expected ragcore.ingest.duration to be recorded")
	}
}

func TestRecordModelCall_IncrementsErrorCounterOnFailure(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordModelCall(context.Background(), "anthropic", "complete", errors.New("boom"))

	rm := collect(t, reader)
	if findMetric(rm, "ragcore.model.errors") == nil {
		t.Fatal("expected ragcore.model.errors to be recorded on failure")
	}
	if findMetric(rm, "ragcore.model.requests") == nil {
		t.Fatal("expected ragcore.model.requests to always be recorded")
	}
}

func TestRecordModelCall_NoErrorCounterOnSuccess(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordModelCall(context.Background(), "openai", "embed", nil)

	rm := collect(t, reader)
	errMetric := findMetric(rm, "ragcore.model.errors")
	if errMetric != nil {
		sum, ok := errMetric.Data.(metricdata.Sum[int64])
		if ok && len(sum.DataPoints) > 0 {
			t.Fatal("expected no error datapoints on success")
		}
	}
}

func TestSessionOpenedClosed_NilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.SessionOpened(context.Background())
	m.SessionClosed(context.Background())
	m.WorkflowStarted(context.Background())
	m.WorkflowFinished(context.Background())
	m.RecordRetrieval(context.Background(), time.Now(), "hybrid")
	m.RecordWorkflow(context.Background(), time.Now(), "simple_qa", "completed")
	m.RecordModelCall(context.Background(), "x", "y", nil)
}

func TestSessionGauge_TracksActiveCount(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.SessionOpened(ctx)
	m.SessionOpened(ctx)
	m.SessionClosed(ctx)

	rm := collect(t, reader)
	met := findMetric(rm, "ragcore.conversation.active_sessions")
	if met == nil {
		t.Fatal("expected active_sessions gauge to be recorded")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("expected a datapoint for active_sessions")
	}
	if sum.DataPoints[0].Value != 1 {
		t.Fatalf("expected net active sessions 1, got %d", sum.DataPoints[0].Value)
	}
}
