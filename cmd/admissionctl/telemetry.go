package main

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AntonStoeckl/library-admission-go/oteladapters"
)

const (
	instrumentationName = "github.com/AntonStoeckl/library-admission-go"
	serviceName         = "admissionctl"
	shutdownTimeout     = 5 * time.Second
)

// telemetry owns the OpenTelemetry providers of one CLI run.
// Metrics are pulled by a manual reader and spans are counted in process, so a run needs no collector.
type telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader
	spans          *spanCounter
	metrics        *oteladapters.MetricsCollector
	tracing        *oteladapters.TracingCollector
}

func newTelemetry() *telemetry {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	spans := newSpanCounter()
	reader := sdkmetric.NewManualReader()

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(spans),
		sdktrace.WithResource(res),
	)
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	return &telemetry{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		reader:         reader,
		spans:          spans,
		metrics:        oteladapters.NewMetricsCollector(meterProvider.Meter(instrumentationName)),
		tracing:        oteladapters.NewTracingCollector(tracerProvider.Tracer(instrumentationName)),
	}
}

type telemetrySummary struct {
	Spans   map[string]spanTally `json:"spans"`
	Metrics map[string]float64   `json:"metrics"`
}

// summary folds the collected metrics into one number per instrument:
// the sum of counters, the observation count of histograms, the last value of gauges.
func (t *telemetry) summary(ctx context.Context) (telemetrySummary, error) {
	var resourceMetrics metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &resourceMetrics); err != nil {
		return telemetrySummary{}, err
	}

	metrics := make(map[string]float64)

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					metrics[m.Name] += float64(dp.Value)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					metrics[m.Name] += float64(dp.Count)
				}
			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					metrics[m.Name] = dp.Value
				}
			}
		}
	}

	return telemetrySummary{Spans: t.spans.snapshot(), Metrics: metrics}, nil
}

func (t *telemetry) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(t.tracerProvider.Shutdown(ctx), t.meterProvider.Shutdown(ctx))
}

type spanTally struct {
	Count  int `json:"count"`
	Errors int `json:"errors"`
}

// spanCounter is a SpanProcessor that tallies finished spans by name.
type spanCounter struct {
	mu    sync.Mutex
	tally map[string]spanTally
}

func newSpanCounter() *spanCounter {
	return &spanCounter{tally: make(map[string]spanTally)}
}

func (c *spanCounter) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (c *spanCounter) OnEnd(s sdktrace.ReadOnlySpan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tally := c.tally[s.Name()]
	tally.Count++

	if s.Status().Code == codes.Error {
		tally.Errors++
	}

	c.tally[s.Name()] = tally
}

func (c *spanCounter) Shutdown(context.Context) error   { return nil }
func (c *spanCounter) ForceFlush(context.Context) error { return nil }

func (c *spanCounter) snapshot() map[string]spanTally {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.tally)
}
