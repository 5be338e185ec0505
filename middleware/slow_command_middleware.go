package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"supctl/ctl"
)

// SlowCommandMiddleware warns when a command is still running after
// threshold. Commands are never cancelled: the client keeps waiting for its
// final reply.
func SlowCommandMiddleware(threshold time.Duration, logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd ctl.Command) error {
			start := time.Now()
			timer := time.AfterFunc(threshold, func() {
				logger.Warn().
					Str("message_id", cmd.MessageID).
					Dur("elapsed", time.Since(start)).
					Msg("command still running")
			})
			defer timer.Stop()
			return next(ctx, cmd)
		}
	}
}
