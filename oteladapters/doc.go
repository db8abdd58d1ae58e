// Package oteladapters provides OpenTelemetry implementations of the admission observability interfaces.
//
// MetricsCollector maps durations to histograms, counters to counters and values to gauges.
// TracingCollector wraps a trace.Tracer. SlogBridgeLogger and OTelLogger are contextual loggers
// with trace correlation; SlogBridgeLogger also satisfies the plain admission.Logger and the
// ratelimit logger.
package oteladapters
