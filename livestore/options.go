package livestore

// Option defines a functional option for configuring a Session.
type Option func(*Session) error

// WithLogger sets the logger for the Session.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: worker query execution with timing (development use)
// Info level: session lifecycle, dispatches, refreshes, removals (production-safe)
// Warn level: dropped stale handovers
// Error level: failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(s *Session) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Session.
// The contextual logger will receive log messages with context information including
// automatic trace/span correlation when tracing is enabled, enabling unified observability.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *Session) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Session.
// The collector will receive performance and operational metrics including
// query durations, dispatch/completion counts, stale handovers, and removals.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *Session) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Session.
// The tracing collector will receive distributed tracing information including
// span creation for query execution and handover import, and error tracking.
func WithTracing(collector TracingCollector) Option {
	return func(s *Session) error {
		s.tracingCollector = collector
		return nil
	}
}

// WithDispatcher sets the dispatcher that runs asynchronous queries for the
// Session. Defaults to a bounded dispatcher when not configured. Tests use
// this to substitute a deterministic inline dispatcher.
func WithDispatcher(dispatcher QueryDispatcher) Option {
	return func(s *Session) error {
		if dispatcher == nil {
			return ErrNilDispatcher
		}

		s.dispatcher = dispatcher

		return nil
	}
}

func applyDispatchOptions(opts []DispatchOption) dispatchConfig {
	var cfg dispatchConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
