package endpoint

import (
	"context"
	"time"

	"golang.org/x/exp/slog"
)

// Middleware is a chainable behavior modifier for generic endpoints.
type Middleware[Req Requester, Resp Responder] func(Endpoint[Req, Resp]) Endpoint[Req, Resp]

// LoggingMiddleware is creating a endpoint Middleware for logging the execution duration and success status.
func LoggingMiddleware[Req Requester, Resp Responder](logger *slog.Logger) Middleware[Req, Resp] {
	return func(next Endpoint[Req, Resp]) Endpoint[Req, Resp] {
		return func(ctx context.Context, request Req) (response Resp, err error) {
			defer func(begin time.Time) {
				attrs := []any{slog.String("method", request.Name()), slog.Duration("duration", time.Since(begin))}
				if err != nil {
					logger.Error("endpoint failed", append(attrs, "error", err)...)
					return
				}
				if failed := response.Failed(); failed != nil {
					logger.Debug("called endpoint", append(attrs, slog.Bool("success", false), "error", failed)...)
					return
				}
				logger.Debug("called endpoint", append(attrs, slog.Bool("success", true))...)
			}(time.Now())

			return next(ctx, request)
		}
	}
}

// chain is applying the logging middleware to an endpoint.
func chain[Req Requester, Resp Responder](ep Endpoint[Req, Resp], logger *slog.Logger) Endpoint[Req, Resp] {
	return LoggingMiddleware[Req, Resp](logger)(ep)
}
