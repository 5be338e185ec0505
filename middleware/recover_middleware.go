package middleware

import (
	"context"
	"runtime/debug"

	"github.com/rs/zerolog"

	"supctl/ctl"
	"supctl/message"
)

// RecoverMiddleware turns a panicking operation into an Internal error so
// the client still receives a final reply.
func RecoverMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd ctl.Command) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Str("message_id", cmd.MessageID).
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Msg("command panicked")
					err = message.Errorf(message.ErrInternal, "%s failed: %v", cmd.MessageID, r)
				}
			}()
			return next(ctx, cmd)
		}
	}
}
