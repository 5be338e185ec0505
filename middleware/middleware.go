// Package middleware wraps command execution in the manager.
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//
// A handler returns the command's error. Whatever the chain returns becomes
// the final NetErr reply unless the command already completed its
// transaction.
package middleware

import (
	"context"

	"supctl/ctl"
)

type HandlerFunc func(ctx context.Context, cmd ctl.Command) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
