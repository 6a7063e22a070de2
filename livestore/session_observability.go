package livestore

import (
	"context"
	"math"
	"time"
)

const (
	logMsgOperation            = "livestore operation: "
	logMsgSessionOpened        = "session opened"
	logMsgSessionClosed        = "session closed"
	logMsgSessionRefreshed     = "session refreshed"
	logMsgQueryDispatched      = "async query dispatched"
	logMsgWorkerQueryCompleted = "worker query completed"
	logMsgWorkerQueryFailed    = "worker query execution failed"
	logMsgQueryFailed          = "query execution failed"
	logMsgCompletionDelivered  = "async completion delivered"
	logMsgCompletionFailed     = "async completion failed"
	logMsgChangeSetDelivered   = "change set delivered"
	logMsgStaleHandover        = "stale handover dropped"
	logMsgRowRemoved           = "row removed"
	logMsgRemoveFailed         = "row removal failed"

	logAttrError        = "error"
	logAttrSessionID    = "session_id"
	logAttrQueryID      = "query_id"
	logAttrTable        = "table"
	logAttrKey          = "key"
	logAttrVersion      = "version"
	logAttrTokenVersion = "token_version"
	logAttrFromVersion  = "from_version"
	logAttrToVersion    = "to_version"
	logAttrMatchCount   = "match_count"
	logAttrDurationMS   = "duration_ms"
	logAttrState        = "state"

	metricQueryDuration        = "livestore_query_duration_seconds"
	metricRefreshDuration      = "livestore_refresh_duration_seconds"
	metricQueriesDispatched    = "livestore_queries_dispatched_total"
	metricCompletionsDelivered = "livestore_completions_delivered_total"
	metricChangeSetsDelivered  = "livestore_change_sets_delivered_total"
	metricQueryErrors          = "livestore_query_errors_total"
	metricStaleHandovers       = "livestore_stale_handovers_total"
	metricRowsRemoved          = "livestore_rows_removed_total"

	operationFind       = "find"
	operationFindFirst  = "find_first_async"
	operationFindAll    = "find_all_async"
	operationExecute    = "execute"
	operationImport     = "import"
	operationRefresh    = "refresh"
	operationRemove     = "remove"
	operationCompletion = "completion"

	statusSuccess = "success"
	statusError   = "error"

	spanNameExecute    = "livestore.execute_query"
	spanAttrOperation  = "operation"
	spanAttrQueryID    = "query_id"
	spanAttrTable      = "table"
	spanAttrMatchCount = "match_count"
	spanAttrVersion    = "version"
	spanAttrErrorType  = "error_type"

	errorTypeExecution = "execution_failed"
)

// logDebug logs worker/query details at debug level if the logger is configured.
func (s *Session) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (s *Session) logOperation(action string, args ...any) {
	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}
}

// logWarn logs non-critical issues at warn level if the logger is configured.
func (s *Session) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

// logError logs error information at the error level if the logger is configured.
func (s *Session) logError(msg string, err error, args ...any) {
	if s.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		s.logger.Error(msg, allArgs...)
	}
}

// logDebugContext logs with trace correlation when a contextual logger is
// configured, falling back to the plain logger otherwise.
func (s *Session) logDebugContext(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	s.logDebug(msg, args...)
}

// logErrorContext logs errors with trace correlation when a contextual logger
// is configured, falling back to the plain logger otherwise.
func (s *Session) logErrorContext(ctx context.Context, msg string, err error, args ...any) {
	if s.contextualLogger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)

		return
	}

	s.logError(msg, err, args...)
}

// recordDuration records a duration metric if the metrics collector is configured.
func (s *Session) recordDuration(metricName string, duration time.Duration, operation, status string) {
	if s.metricsCollector != nil {
		labels := map[string]string{
			spanAttrOperation: operation,
			"status":          status,
		}
		s.metricsCollector.RecordDuration(metricName, duration, labels)
	}
}

// recordDurationContext records a duration metric, using the context-aware
// collector method when the configured collector supports it.
func (s *Session) recordDurationContext(ctx context.Context, metricName string, duration time.Duration, operation, status string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		"status":          status,
	}

	// Use context-aware method if available
	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
	} else {
		s.metricsCollector.RecordDuration(metricName, duration, labels)
	}
}

// incrementCounter increments a counter metric if the metrics collector is configured.
func (s *Session) incrementCounter(metricName string, operation string) {
	if s.metricsCollector != nil {
		labels := map[string]string{
			spanAttrOperation: operation,
		}
		s.metricsCollector.IncrementCounter(metricName, labels)
	}
}

// incrementCounterContext increments a counter metric, using the context-aware
// collector method when the configured collector supports it.
func (s *Session) incrementCounterContext(ctx context.Context, metricName string, operation string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
	}

	// Use context-aware method if available
	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricName, labels)
	} else {
		s.metricsCollector.IncrementCounter(metricName, labels)
	}
}

// startTraceSpan starts a tracing span if the tracing collector is configured.
func (s *Session) startTraceSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext) {
	if s.tracingCollector != nil {
		return s.tracingCollector.StartSpan(ctx, name, attrs)
	}

	return ctx, nil
}

// finishTraceSpan finishes a tracing span if the tracing collector is configured.
func (s *Session) finishTraceSpan(spanCtx SpanContext, status string, attrs map[string]string) {
	if s.tracingCollector != nil && spanCtx != nil {
		s.tracingCollector.FinishSpan(spanCtx, status, attrs)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
