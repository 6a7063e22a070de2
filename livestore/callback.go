package livestore

// QueryCallback bundles the optional hooks delivered once, on the owning
// goroutine, for a single asynchronous dispatch: OnSuccess after an entity
// handle completes, OnResults after a collection handle completes, OnError
// when the worker's query execution failed. The optional BeforeDeliver hook
// runs immediately before any of them; instrumented callbacks are plain
// configuration, not a callback subtype.
//
// A stale handover is not delivered through the callback; it is logged and
// left for Load to surface.
type QueryCallback struct {
	OnSuccess     func(e *Entity)
	OnResults     func(res *Results)
	OnError       func(err error)
	BeforeDeliver func(s *Session)
}

// DispatchOption configures a single asynchronous dispatch.
type DispatchOption func(cfg *dispatchConfig)

type dispatchConfig struct {
	callback *QueryCallback
}

// WithCallback attaches cb to one dispatch.
func WithCallback(cb *QueryCallback) DispatchOption {
	return func(cfg *dispatchConfig) {
		cfg.callback = cb
	}
}
