package kit

import "context"

// Endpoint is a unit of work invoked with a request and returning a
// response. The plugin host wraps Capability calls (Activate/Reset/
// Teardown) as endpoints so cross-cutting concerns (logging, recovery)
// compose the same way regardless of which lifecycle method is being run.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint with additional behavior.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one runs outermost.
func Chain(mw ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}
