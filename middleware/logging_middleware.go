package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"supctl/ctl"
	"supctl/metrics"
)

// LoggingMiddleware logs every command with its duration and records it in
// the command metrics.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd ctl.Command) error {
			start := time.Now()
			err := next(ctx, cmd)
			duration := time.Since(start)

			event := logger.Debug()
			result := "ok"
			if err != nil {
				event = logger.Warn().Err(err)
				result = "error"
			}
			if txn := cmd.Req.Transaction(); txn != nil {
				event = event.Uint32("txn", txn.ID())
			}
			event.Str("message_id", cmd.MessageID).Dur("duration", duration).Msg("command finished")
			metrics.RecordCommand(cmd.MessageID, result, duration)
			return err
		}
	}
}
