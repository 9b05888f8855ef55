package middleware

import (
	"context"
	"time"

	"github.com/robert-cronin/kvrpc/errors"
	"github.com/robert-cronin/kvrpc/message"
)

// TimeOutMiddleware bounds each call. A call still running at the deadline is
// answered with 504; the handler keeps its cancelled context and its late
// result is dropped.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.ErrorResponse(req.ID, errors.GatewayTimeout(errors.IDServer, "request timed out"))
			}
		}
	}
}
