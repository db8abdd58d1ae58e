package postgresengine

import (
	"context"
	"math"
	"time"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

const (
	logMsgSQLExecuted           = "executed sql for: "
	logMsgBuildQueryFailed      = "failed to build sql query"
	logMsgDBQueryFailed         = "database query execution failed"
	logMsgDBExecFailed          = "database execution failed"
	logMsgCloseRowsFailed       = "failed to close database rows"
	logMsgScanRowFailed         = "failed to scan database row"
	logMsgBeginFailed           = "failed to begin transaction"
	logMsgCommitFailed          = "failed to commit transaction"
	logMsgRollbackFailed        = "failed to roll back transaction"
	logMsgLockContention        = "lock contention detected"
	logMsgSchemaStatementFailed = "schema statement failed"
	logMsgSchemaEnsured         = "schema ensured"
	logMsgMarkedOverdue         = "obligations marked overdue"

	logAttrError        = "error"
	logAttrQuery        = "query"
	logAttrDurationMS   = "duration_ms"
	logAttrAction       = "action"
	logAttrRowsAffected = "rows_affected"
	logAttrStatements   = "statements"
)

const (
	metricStatementDuration   = "admission_store_statement_duration_seconds"
	metricTransactionDuration = "admission_store_transaction_duration_seconds"
	metricDatabaseErrors      = "admission_store_errors_total"

	spanNameTransaction = "admission_store.transaction"
	spanAttrAction      = "action"
	spanAttrErrorType   = "error_type"

	statusSuccess = "success"
	statusError   = "error"
)

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (s *Store) logQueryWithDuration(ctx context.Context, sqlQuery, action string, duration time.Duration) {
	args := []any{logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery}

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
	case s.logger != nil:
		s.logger.Debug(logMsgSQLExecuted+action, args...)
	}
}

func (s *Store) logInfo(ctx context.Context, msg string, args ...any) {
	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.InfoContext(ctx, msg, args...)
	case s.logger != nil:
		s.logger.Info(msg, args...)
	}
}

func (s *Store) logWarn(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.WarnContext(ctx, msg, allArgs...)
	case s.logger != nil:
		s.logger.Warn(msg, allArgs...)
	}
}

// logError logs err at error level. Lock contention is expected under load and goes to warn level.
func (s *Store) logError(ctx context.Context, msg string, err error, args ...any) {
	if admission.IsRetryable(classify(err)) {
		s.logWarn(ctx, logMsgLockContention, err, append([]any{"during", msg}, args...)...)
		return
	}

	allArgs := append([]any{logAttrError, err.Error()}, args...)

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	case s.logger != nil:
		s.logger.Error(msg, allArgs...)
	}
}

func (s *Store) recordDuration(ctx context.Context, metric, action, status string, d time.Duration) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{spanAttrAction: action, "status": status}

	if contextual, ok := s.metricsCollector.(admission.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	s.metricsCollector.RecordDuration(metric, d, labels)
}

func (s *Store) recordError(ctx context.Context, action string, err error) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{spanAttrAction: action, spanAttrErrorType: errorType(err)}

	if contextual, ok := s.metricsCollector.(admission.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricDatabaseErrors, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metricDatabaseErrors, labels)
}

func (s *Store) startSpan(ctx context.Context, action string) (context.Context, admission.SpanContext) {
	if s.tracingCollector == nil {
		return ctx, nil
	}

	return s.tracingCollector.StartSpan(ctx, spanNameTransaction, map[string]string{spanAttrAction: action})
}

func (s *Store) finishSpan(span admission.SpanContext, err error) {
	if s.tracingCollector == nil || span == nil {
		return
	}

	if err != nil {
		s.tracingCollector.FinishSpan(span, statusError, map[string]string{spanAttrErrorType: errorType(err)})
		return
	}

	s.tracingCollector.FinishSpan(span, statusSuccess, nil)
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
