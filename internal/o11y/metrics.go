// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package o11y

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	UpstreamRequestsProm *prometheus.CounterVec
	UpstreamDurationProm prometheus.Histogram
	TelemetryPointsProm  prometheus.Gauge
	UpstreamRequestsOtel metric.Int64Counter
	UpstreamDurationOtel metric.Float64Histogram
	TelemetryPointsOtel  metric.Int64ObservableGauge

	telemetryPoints atomic.Int64
	commonOtelAttrs []attribute.KeyValue
)

// InitCourierMetrics sets up the upstream metrics in both OTEL and Prometheus
func InitCourierMetrics(appName string, commonAttribs []attribute.KeyValue, registerer prometheus.Registerer) error {
	meter := otel.GetMeterProvider().Meter(appName)
	commonOtelAttrs = commonAttribs

	var err error
	// register the OTEL metrics
	UpstreamRequestsOtel, err = meter.Int64Counter(
		"solarcourier_upstream_requests",
		metric.WithDescription("Requests sent to the inverter by outcome"),
	)
	if err != nil {
		return err
	}
	UpstreamDurationOtel, err = meter.Float64Histogram(
		"solarcourier_upstream_duration",
		metric.WithDescription("Time spent waiting for the inverter"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}
	TelemetryPointsOtel, err = meter.Int64ObservableGauge(
		"solarcourier_telemetry_points",
		metric.WithDescription("Data points in the last successful inverter reading"),
	)
	if err != nil {
		return err
	}

	promLabels := make(prometheus.Labels)
	for _, attr := range commonAttribs {
		promLabels[string(attr.Key)] = attr.Value.AsString()
	}

	// register the Prometheus metrics
	factory := promauto.With(registerer)
	UpstreamRequestsProm = factory.NewCounterVec(prometheus.CounterOpts{
		Name:        "solarcourier_upstream_requests_total",
		Help:        "Requests sent to the inverter by outcome",
		ConstLabels: promLabels,
	}, []string{"outcome"})
	UpstreamDurationProm = factory.NewHistogram(prometheus.HistogramOpts{
		Name:        "solarcourier_upstream_duration_seconds",
		Help:        "Time spent waiting for the inverter",
		ConstLabels: promLabels,
		Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	TelemetryPointsProm = factory.NewGauge(prometheus.GaugeOpts{
		Name:        "solarcourier_telemetry_points",
		Help:        "Data points in the last successful inverter reading",
		ConstLabels: promLabels,
	})

	// OTEL sending as callback on meter activity
	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			observer.ObserveInt64(TelemetryPointsOtel, telemetryPoints.Load(), metric.WithAttributes(commonOtelAttrs...))
			return nil
		}, TelemetryPointsOtel)
	return err
}

// RecordUpstream counts one inverter call; before InitCourierMetrics it does nothing
func RecordUpstream(ctx context.Context, outcome string, elapsed time.Duration) {
	if UpstreamRequestsProm == nil {
		return
	}
	UpstreamRequestsProm.WithLabelValues(outcome).Inc()
	UpstreamDurationProm.Observe(elapsed.Seconds())

	attrs := append([]attribute.KeyValue{attribute.String("outcome", outcome)}, commonOtelAttrs...)
	UpstreamRequestsOtel.Add(ctx, 1, metric.WithAttributes(attrs...))
	UpstreamDurationOtel.Record(ctx, elapsed.Seconds(), metric.WithAttributes(commonOtelAttrs...))
}

func RecordTelemetryPoints(points int) {
	telemetryPoints.Store(int64(points))
	if TelemetryPointsProm != nil {
		TelemetryPointsProm.Set(float64(points))
	}
}
