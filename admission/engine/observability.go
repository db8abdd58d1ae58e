package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

const (
	operationRequestLoan     = "request_loan"
	operationListObligations = "list_obligations"
	operationActivateLoan    = "activate_loan"
	operationReturnLoan      = "return_loan"
	operationMarkOverdue     = "mark_overdue"
)

const (
	metricPrefix              = "admission_"
	metricDurationSuffix      = "_duration_seconds"
	metricRejections          = "admission_rejections_total"
	metricContention          = "admission_contention_total"
	metricInvariantViolations = "admission_invariant_violations_total"
	metricOperationErrors     = "admission_errors_total"
	metricMarkedOverdue       = "admission_obligations_marked_overdue"
)

const (
	statusSuccess  = "success"
	statusRejected = "rejected"
	statusError    = "error"
)

const (
	spanNamePrefix       = "admission."
	spanAttrOperation    = "operation"
	spanAttrActorID      = "actor_id"
	spanAttrResourceID   = "resource_id"
	spanAttrObligationID = "obligation_id"
	spanAttrReason       = "reason"
	spanAttrIdempotent   = "idempotent"
)

const (
	logMsgCompleted          = "admission operation completed"
	logMsgRejected           = "admission request rejected"
	logMsgContention         = "admission operation hit lock contention"
	logMsgInvariantViolation = "admission invariant violated"
	logMsgFailed             = "admission operation failed"

	logAttrOperation  = "operation"
	logAttrReason     = "reason"
	logAttrDurationMS = "duration_ms"
	logAttrError      = "error"
)

// operationObserver tracks the duration, span and outcome of one engine operation.
type operationObserver struct {
	e         *Engine
	ctx       context.Context
	operation string
	span      admission.SpanContext
	start     time.Time
	logArgs   []any
}

// startOperation opens the span of an operation. logArgs are appended to every log line it emits.
func (e *Engine) startOperation(
	ctx context.Context,
	operation string,
	attrs map[string]string,
	logArgs ...any,
) (*operationObserver, context.Context) {
	var span admission.SpanContext

	if e.tracingCollector != nil {
		spanAttrs := map[string]string{spanAttrOperation: operation}
		for k, v := range attrs {
			spanAttrs[k] = v
		}

		ctx, span = e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, spanAttrs)
	}

	return &operationObserver{
		e:         e,
		ctx:       ctx,
		operation: operation,
		span:      span,
		start:     time.Now(),
		logArgs:   logArgs,
	}, ctx
}

// finish classifies err, logs and records metrics accordingly and closes the span.
func (o *operationObserver) finish(err error, attrs map[string]string) {
	duration := time.Since(o.start)
	reason := admission.RejectionReason(err)
	args := append([]any{logAttrOperation, o.operation, logAttrDurationMS, toMilliseconds(duration)}, o.logArgs...)

	status := statusSuccess

	switch {
	case err == nil:
		o.e.logDebug(o.ctx, logMsgCompleted, args...)

	case admission.IsBusinessRejection(err):
		status = statusRejected
		o.e.logInfo(o.ctx, logMsgRejected, append(args, logAttrReason, reason)...)
		o.e.incrementCounter(o.ctx, metricRejections, map[string]string{spanAttrOperation: o.operation, spanAttrReason: reason})

	case admission.IsRetryable(err):
		status = statusError
		o.e.logWarn(o.ctx, logMsgContention, append(args, logAttrError, err.Error())...)
		o.e.incrementCounter(o.ctx, metricContention, map[string]string{spanAttrOperation: o.operation})

	case errors.Is(err, admission.ErrInvariantViolated):
		status = statusError
		o.e.logError(o.ctx, logMsgInvariantViolation, append(args, logAttrError, err.Error())...)
		o.e.incrementCounter(o.ctx, metricInvariantViolations, map[string]string{spanAttrOperation: o.operation})

	default:
		status = statusError
		o.e.logError(o.ctx, logMsgFailed, append(args, logAttrError, err.Error(), logAttrReason, reason)...)
		o.e.incrementCounter(o.ctx, metricOperationErrors, map[string]string{spanAttrOperation: o.operation, spanAttrReason: reason})
	}

	o.e.recordDuration(o.ctx, metricPrefix+o.operation+metricDurationSuffix, duration, map[string]string{
		spanAttrOperation: o.operation,
		"status":          status,
	})

	if o.span != nil {
		finishAttrs := map[string]string{}
		for k, v := range attrs {
			finishAttrs[k] = v
		}

		if err != nil {
			finishAttrs[spanAttrReason] = reason
		}

		o.span.SetStatus(status)
		o.e.tracingCollector.FinishSpan(o.span, status, finishAttrs)
	}
}

func (e *Engine) logDebug(ctx context.Context, msg string, args ...any) {
	switch {
	case e.contextualLogger != nil:
		e.contextualLogger.DebugContext(ctx, msg, args...)
	case e.logger != nil:
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) logInfo(ctx context.Context, msg string, args ...any) {
	switch {
	case e.contextualLogger != nil:
		e.contextualLogger.InfoContext(ctx, msg, args...)
	case e.logger != nil:
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logWarn(ctx context.Context, msg string, args ...any) {
	switch {
	case e.contextualLogger != nil:
		e.contextualLogger.WarnContext(ctx, msg, args...)
	case e.logger != nil:
		e.logger.Warn(msg, args...)
	}
}

func (e *Engine) logError(ctx context.Context, msg string, args ...any) {
	switch {
	case e.contextualLogger != nil:
		e.contextualLogger.ErrorContext(ctx, msg, args...)
	case e.logger != nil:
		e.logger.Error(msg, args...)
	}
}

// incrementCounter uses the context-aware method of the collector if available.
func (e *Engine) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextual, ok := e.metricsCollector.(admission.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	e.metricsCollector.IncrementCounter(metric, labels)
}

func (e *Engine) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextual, ok := e.metricsCollector.(admission.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	e.metricsCollector.RecordDuration(metric, duration, labels)
}

func (e *Engine) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextual, ok := e.metricsCollector.(admission.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	e.metricsCollector.RecordValue(metric, value, labels)
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
