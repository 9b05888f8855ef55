package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robert-cronin/kvrpc/errors"
	"github.com/robert-cronin/kvrpc/message"
)

// RetryMiddleware repeats calls that failed with a retryable error (transport
// failure or timeout), waiting baseDelay, 2*baseDelay, 4*baseDelay and so on.
// It stops early when ctx is done.
func RetryMiddleware(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if resp.Error == nil || !errors.Retryable(resp.Error) {
					return resp
				}
				log.Debug().
					Int("attempt", i+1).
					Str("method", req.Method).
					Str("detail", resp.Error.Detail).
					Msg("retrying call")

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return resp
				case <-timer.C:
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}
