// Package middleware wraps call handlers on both sides of a kvrpc call.
//
// A HandlerFunc takes a decoded request envelope and returns a response envelope.
// The server runs the chain around the operation dispatch; the client runs it around
// the HTTP round trip. Failures are reported in Response.Error, never as a Go error.
package middleware

import (
	"context"

	"github.com/robert-cronin/kvrpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one is outermost:
//
//	Chain(A, B, C)(h) == A(B(C(h)))
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
