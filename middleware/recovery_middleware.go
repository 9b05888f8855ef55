package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/robert-cronin/kvrpc/errors"
	"github.com/robert-cronin/kvrpc/message"
)

// RecoveryMiddleware turns a panic in the handler into a 500 response.
func RecoveryMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (resp *message.Response) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("method", req.Method).
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Msg("handler panicked")
					resp = message.ErrorResponse(req.ID, errors.InternalServerError(errors.IDServer, fmt.Sprintf("panic: %v", r)))
				}
			}()
			return next(ctx, req)
		}
	}
}
