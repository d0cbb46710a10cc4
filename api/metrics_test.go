package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return tp, exporter, func() { otel.SetTracerProvider(prev) }
}

func TestBoardRequestMetricsLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	_, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, spanCtx := newBoardRequestMetrics(context.Background(), logger)
	if !trace.SpanContextFromContext(spanCtx).IsValid() {
		t.Fatal("expected a recording span context")
	}
	metrics.start = metrics.start.Add(-50 * time.Millisecond)
	metrics.ObserveAuth(10 * time.Millisecond)
	metrics.ObserveFetch(15 * time.Millisecond)
	metrics.SetItemsReturned(3)

	metrics.Log(http.StatusOK, nil)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("no log entry recorded")
	}
	if entry.Message != "board.request.metrics" {
		t.Fatalf("message = %q", entry.Message)
	}
	if entry.Data["status"] != http.StatusOK {
		t.Fatalf("status field = %v", entry.Data["status"])
	}
	if entry.Data["items_returned"] != 3 {
		t.Fatalf("items_returned = %v", entry.Data["items_returned"])
	}
	if total, ok := entry.Data["total_ms"].(float64); !ok || total < 50 {
		t.Fatalf("total_ms = %v", entry.Data["total_ms"])
	}
	if entry.Data["stale"] != false {
		t.Fatalf("stale = %v", entry.Data["stale"])
	}
	if _, present := entry.Data["error"]; present {
		t.Fatal("no error field expected on success")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "board.fetch" {
		t.Fatalf("span name = %q", spans[0].Name)
	}
	attrs := make(map[string]any, len(spans[0].Attributes))
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["http.status_code"] != int64(http.StatusOK) {
		t.Fatalf("status attribute = %v", attrs["http.status_code"])
	}
	if attrs["board.items_returned"] != int64(3) {
		t.Fatalf("items attribute = %v", attrs["board.items_returned"])
	}
}

func TestBoardRequestMetricsLogError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	_, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newBoardRequestMetrics(context.Background(), logger)
	metrics.SetErrorStage("storage")
	metrics.SetStale(true)
	boom := errors.New("backend down")

	metrics.Log(http.StatusInternalServerError, boom)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("no log entry recorded")
	}
	if entry.Data["error"] != boom.Error() {
		t.Fatalf("error field = %v", entry.Data["error"])
	}
	if entry.Data["error_stage"] != "storage" {
		t.Fatalf("error_stage = %v", entry.Data["error_stage"])
	}
	if entry.Data["stale"] != true {
		t.Fatalf("stale = %v", entry.Data["stale"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if len(spans[0].Events) == 0 {
		t.Fatal("expected the error recorded on the span")
	}
}
