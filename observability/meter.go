package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/kbukum/flowgate"

// InitMeter installs a periodic OTLP meter provider as the global provider.
func InitMeter(ctx context.Context, cfg Config, serviceName, version string) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(serviceName, version, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.MetricInterval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// Meter returns the flowgate meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(meterName)
}

// Metrics holds the execution instruments.
type Metrics struct {
	executions        metric.Int64Counter
	executionDuration metric.Float64Histogram
	nodes             metric.Int64Counter
	nodeDuration      metric.Float64Histogram
	credits           metric.Int64Counter
	triggerRejections metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	executions, err := meter.Int64Counter("flowgate.executions",
		metric.WithDescription("Finished workflow executions"))
	if err != nil {
		return nil, fmt.Errorf("creating flowgate.executions: %w", err)
	}
	executionDuration, err := meter.Float64Histogram("flowgate.execution.duration",
		metric.WithDescription("Wall time of workflow executions"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating flowgate.execution.duration: %w", err)
	}
	nodes, err := meter.Int64Counter("flowgate.nodes",
		metric.WithDescription("Finished node runs"))
	if err != nil {
		return nil, fmt.Errorf("creating flowgate.nodes: %w", err)
	}
	nodeDuration, err := meter.Float64Histogram("flowgate.node.duration",
		metric.WithDescription("Wall time of node runs including retries"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating flowgate.node.duration: %w", err)
	}
	credits, err := meter.Int64Counter("flowgate.credits.consumed",
		metric.WithDescription("Credits debited for node runs"))
	if err != nil {
		return nil, fmt.Errorf("creating flowgate.credits.consumed: %w", err)
	}
	rejections, err := meter.Int64Counter("flowgate.trigger.rejections",
		metric.WithDescription("Triggers refused before an execution was created"))
	if err != nil {
		return nil, fmt.Errorf("creating flowgate.trigger.rejections: %w", err)
	}

	return &Metrics{
		executions:        executions,
		executionDuration: executionDuration,
		nodes:             nodes,
		nodeDuration:      nodeDuration,
		credits:           credits,
		triggerRejections: rejections,
	}, nil
}

// DefaultMetrics builds Metrics on the global meter. It returns nil, which
// records nothing, if instrument creation fails.
func DefaultMetrics() *Metrics {
	m, err := NewMetrics(Meter())
	if err != nil {
		return nil
	}
	return m
}

// RecordExecution records a finished execution.
func (m *Metrics) RecordExecution(ctx context.Context, trigger, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrTrigger, trigger),
		attribute.String(AttrStatus, status),
	)
	m.executions.Add(ctx, 1, attrs)
	m.executionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordNode records a finished node run.
func (m *Metrics) RecordNode(ctx context.Context, taskType, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrTaskType, taskType),
		attribute.String(AttrStatus, status),
	)
	m.nodes.Add(ctx, 1, attrs)
	m.nodeDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordCredits records credits debited for a task type.
func (m *Metrics) RecordCredits(ctx context.Context, taskType string, credits int64) {
	if m == nil || credits <= 0 {
		return
	}
	m.credits.Add(ctx, credits, metric.WithAttributes(attribute.String(AttrTaskType, taskType)))
}

// RecordTriggerRejected counts a refused trigger by reason
// (rate_limited, duplicate, insufficient_credits, ...).
func (m *Metrics) RecordTriggerRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.triggerRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
