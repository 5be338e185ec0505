package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"supctl/ctl"
	"supctl/message"
)

// RateLimitMiddleware rejects commands above r per second (token bucket of
// size burst) with a Conflict error.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd ctl.Command) error {
			if !limiter.Allow() {
				return message.Errorf(message.ErrConflict, "rate limit exceeded, retry %s later", cmd.MessageID)
			}
			return next(ctx, cmd)
		}
	}
}
