package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/robert-cronin/kvrpc/message"
)

// LoggingMiddleware logs one event per call. The level follows the status:
// 5xx logs at error, 4xx at warn, everything else at debug.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)
			status := resp.StatusCode()

			event := logger.Debug()
			if status >= 500 {
				event = logger.Error()
			} else if status >= 400 {
				event = logger.Warn()
			}
			if resp.Error != nil {
				event = event.Str("error_id", resp.Error.ID).Str("detail", resp.Error.Detail)
			}
			event.
				Uint32("id", req.ID).
				Str("method", req.Method).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("rpc")
			return resp
		}
	}
}
