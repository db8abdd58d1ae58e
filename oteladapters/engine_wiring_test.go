package oteladapters_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/library-admission-go/admission"
	"github.com/AntonStoeckl/library-admission-go/admission/engine"
	"github.com/AntonStoeckl/library-admission-go/admission/memengine"
	"github.com/AntonStoeckl/library-admission-go/oteladapters"
)

func Test_Engine_WithOTelAdapters_ExportsSpansAndMetrics(t *testing.T) {
	// arrange
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter := tracetest.NewInMemoryExporter()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	resourceID := uuid.New()
	store, err := memengine.NewStore(memengine.WithInventories(admission.BuildInventory(resourceID, 1)))
	require.NoError(t, err)

	e, err := engine.New(store,
		engine.WithMetrics(oteladapters.NewMetricsCollector(meterProvider.Meter("admission"))),
		engine.WithTracing(oteladapters.NewTracingCollector(tracerProvider.Tracer("admission"))),
	)
	require.NoError(t, err)

	// act
	_, firstErr := e.RequestLoan(context.Background(), uuid.New(), resourceID)
	_, secondErr := e.RequestLoan(context.Background(), uuid.New(), resourceID)

	// assert
	require.NoError(t, firstErr)
	assert.ErrorIs(t, secondErr, admission.ErrResourceUnavailable)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assertSpanHasAttribute(t, spans[1], "status", "rejected")

	resourceMetrics := collect(t, reader)
	histogram := findHistogramMetric(t, resourceMetrics, "admission_request_loan_duration_seconds")
	assert.NotEmpty(t, histogram.DataPoints)
	rejections := findCounterMetric(t, resourceMetrics, "admission_rejections_total")
	require.Len(t, rejections.DataPoints, 1)
	assert.Equal(t, int64(1), rejections.DataPoints[0].Value)
}
