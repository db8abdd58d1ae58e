package oteladapters_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/library-admission-go/oteladapters"
)

func givenCollector() (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return oteladapters.NewMetricsCollector(provider.Meter("test")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics), "failed to collect metrics")

	return resourceMetrics
}

func Test_MetricsCollector_RecordDuration_RecordsSecondsHistogram(t *testing.T) {
	// arrange
	collector, reader := givenCollector()

	// act
	collector.RecordDuration("admission_request_loan_duration_seconds", 150*time.Millisecond, map[string]string{
		"operation": "request_loan",
		"status":    "success",
	})

	// assert
	histogram := findHistogramMetric(t, collect(t, reader), "admission_request_loan_duration_seconds")
	require.Len(t, histogram.DataPoints, 1)
	assert.Equal(t, uint64(1), histogram.DataPoints[0].Count)
	assert.InDelta(t, 0.15, histogram.DataPoints[0].Sum, 0.001)

	value, ok := histogram.DataPoints[0].Attributes.Value(attribute.Key("status"))
	assert.True(t, ok)
	assert.Equal(t, "success", value.AsString())
}

func Test_MetricsCollector_IncrementCounter_AddsOnePerCall(t *testing.T) {
	// arrange
	collector, reader := givenCollector()
	labels := map[string]string{"operation": "request_loan", "reason": "resource_unavailable"}

	// act
	collector.IncrementCounter("admission_rejections_total", labels)
	collector.IncrementCounterContext(context.Background(), "admission_rejections_total", labels)

	// assert
	counter := findCounterMetric(t, collect(t, reader), "admission_rejections_total")
	require.Len(t, counter.DataPoints, 1)
	assert.Equal(t, int64(2), counter.DataPoints[0].Value)
}

func Test_MetricsCollector_RecordValue_KeepsLastValue(t *testing.T) {
	// arrange
	collector, reader := givenCollector()

	// act
	collector.RecordValue("admission_obligations_marked_overdue", 3, nil)
	collector.RecordValueContext(context.Background(), "admission_obligations_marked_overdue", 7, nil)

	// assert
	gauge := findGaugeMetric(t, collect(t, reader), "admission_obligations_marked_overdue")
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 7.0, gauge.DataPoints[0].Value, 0.0001)
	assert.Equal(t, 0, gauge.DataPoints[0].Attributes.Len())
}

func Test_MetricsCollector_ConcurrentUse_SharesInstruments(t *testing.T) {
	// arrange
	collector, reader := givenCollector()

	const workers = 20
	var wg sync.WaitGroup

	// act
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncrementCounter("admission_contention_total", map[string]string{"operation": "request_loan"})
		}()
	}
	wg.Wait()

	// assert
	counter := findCounterMetric(t, collect(t, reader), "admission_contention_total")
	require.Len(t, counter.DataPoints, 1)
	assert.Equal(t, int64(workers), counter.DataPoints[0].Value)
}

func findHistogramMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) *metricdata.Histogram[float64] {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if h, ok := m.Data.(metricdata.Histogram[float64]); ok && m.Name == name {
				return &h
			}
		}
	}

	t.Fatalf("histogram metric %s not found", name)

	return nil
}

func findCounterMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) *metricdata.Sum[int64] {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if c, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == name {
				return &c
			}
		}
	}

	t.Fatalf("counter metric %s not found", name)

	return nil
}

func findGaugeMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) *metricdata.Gauge[float64] {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if g, ok := m.Data.(metricdata.Gauge[float64]); ok && m.Name == name {
				return &g
			}
		}
	}

	t.Fatalf("gauge metric %s not found", name)

	return nil
}
