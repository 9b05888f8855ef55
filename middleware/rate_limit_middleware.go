package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/robert-cronin/kvrpc/errors"
	"github.com/robert-cronin/kvrpc/message"
)

// RateLimitMiddleware rejects calls above r per second (token bucket with burst)
// with 429.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return message.ErrorResponse(req.ID, errors.TooManyRequests(errors.IDServer, "rate limit exceeded"))
			}
			return next(ctx, req)
		}
	}
}
