package pool

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RegisterMetrics exposes the pool counters as observable instruments on
// meter, labelled by class.
func (p *Pool) RegisterMetrics(meter metric.Meter) error {
	inFlight, err := meter.Int64ObservableGauge("flowgate.pool.in_flight",
		metric.WithDescription("Tasks currently holding a slot"))
	if err != nil {
		return err
	}
	waiting, err := meter.Int64ObservableGauge("flowgate.pool.waiting",
		metric.WithDescription("Tasks waiting for a slot"))
	if err != nil {
		return err
	}
	peak, err := meter.Int64ObservableGauge("flowgate.pool.peak_in_flight",
		metric.WithDescription("Highest observed in-flight count"))
	if err != nil {
		return err
	}
	rejected, err := meter.Int64ObservableCounter("flowgate.pool.backpressure_rejected",
		metric.WithDescription("Tasks rejected by backpressure"))
	if err != nil {
		return err
	}
	waitMs, err := meter.Int64ObservableCounter("flowgate.pool.wait_ms",
		metric.WithDescription("Cumulative slot wait time"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, s := range p.Snapshot() {
			attrs := metric.WithAttributes(attribute.String("class", s.Class))
			o.ObserveInt64(inFlight, s.InFlight, attrs)
			o.ObserveInt64(waiting, s.Waiting, attrs)
			o.ObserveInt64(peak, s.PeakInFlight, attrs)
			o.ObserveInt64(rejected, s.BackpressureRejected, attrs)
			o.ObserveInt64(waitMs, s.TotalWaitMs, attrs)
		}
		return nil
	}, inFlight, waiting, peak, rejected, waitMs)
	return err
}
