package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/flowgate/logger"
)

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Endpoint != "localhost:4318" || cfg.SampleRate != 1.0 || cfg.MetricInterval != 15*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	cfg.SampleRate = 2
	if err := cfg.Validate(); err == nil {
		t.Error("sample rate 2 should fail validation")
	}
}

func TestStartOperation_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, op := StartOperation(context.Background(), SpanNode, attribute.String(AttrNodeID, "n1"))
	op.End("FAILED", errors.New("selector not found"))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != SpanNode {
		t.Errorf("name = %s", span.Name())
	}
	if len(span.Events()) == 0 {
		t.Error("error was not recorded as a span event")
	}
	var status string
	for _, kv := range span.Attributes() {
		if kv.Key == AttrStatus {
			status = kv.Value.AsString()
		}
	}
	if status != "FAILED" {
		t.Errorf("status attribute = %q", status)
	}
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	m.RecordNode(ctx, "PAGE_TO_HTML", "COMPLETED", 20*time.Millisecond)
	m.RecordCredits(ctx, "PAGE_TO_HTML", 2)
	m.RecordCredits(ctx, "PAGE_TO_HTML", 3)
	m.RecordExecution(ctx, "manual", "COMPLETED", time.Second)
	m.RecordTriggerRejected(ctx, "rate_limited")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	var credits int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "flowgate.credits.consumed" {
				continue
			}
			sum := md.Data.(metricdata.Sum[int64])
			for _, dp := range sum.DataPoints {
				credits += dp.Value
			}
		}
	}
	if credits != 5 {
		t.Errorf("credits consumed = %d, want 5", credits)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordNode(context.Background(), "X", "COMPLETED", time.Millisecond)
	m.RecordExecution(context.Background(), "manual", "FAILED", time.Millisecond)
}

func TestNewMetrics_Noop(t *testing.T) {
	if _, err := NewMetrics(noop.NewMeterProvider().Meter("test")); err != nil {
		t.Fatal(err)
	}
}

func TestComponent_DisabledIsInert(t *testing.T) {
	c := NewComponent(Config{}, "flowgate", "test", logger.NewNop())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Describe().Details != "disabled" {
		t.Errorf("details = %q", c.Describe().Details)
	}
}
