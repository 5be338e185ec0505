// Package manager is the consumer side of the ctl inbox: it executes
// SvcLoad and SvcStart commands against the on-disk service specs.
//
// Commands run one at a time, in submission order. Whatever an operation
// does, its transaction is closed: an error becomes a NetErr final reply and
// an operation that returns without a final reply gets a NetOk.
package manager

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/rs/zerolog"

	"supctl/config"
	"supctl/ctl"
	"supctl/message"
	"supctl/middleware"
)

const slowCommandThreshold = 30 * time.Second

type Manager struct {
	cfg         config.Manager
	inbox       *ctl.Inbox
	logger      zerolog.Logger
	middlewares []middleware.Middleware
}

// New builds a manager reading from inbox. Recover and logging middlewares
// are always installed, rate limiting only when cfg.RateLimit is set.
func New(cfg config.Manager, inbox *ctl.Inbox, logger zerolog.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		inbox:  inbox,
		logger: logger.With().Str("component", "manager").Logger(),
	}
	m.Use(middleware.LoggingMiddleware(m.logger))
	m.Use(middleware.RecoverMiddleware(m.logger))
	m.Use(middleware.SlowCommandMiddleware(slowCommandThreshold, m.logger))
	if cfg.RateLimit > 0 {
		m.Use(middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	return m
}

// Use appends a middleware. It must be called before Run.
func (m *Manager) Use(mw middleware.Middleware) {
	m.middlewares = append(m.middlewares, mw)
}

// Run consumes the inbox until it is closed or ctx is done. Commands still
// queued at that point are abandoned: their reply queues are closed without
// a final reply.
func (m *Manager) Run(ctx context.Context) error {
	handler := middleware.Chain(m.middlewares...)(m.execute)
	m.logger.Info().Msg("manager started")
	defer m.logger.Info().Msg("manager stopped")

	for {
		cmd, err := m.inbox.Recv(ctx)
		if err != nil {
			for _, pending := range m.inbox.Close() {
				m.logger.Debug().Str("message_id", pending.MessageID).Msg("abandoning queued command")
				pending.Req.Close()
			}
			if errors.Is(err, ctl.ErrInboxClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		m.finish(cmd, handler(ctx, cmd))
	}
}

func (m *Manager) execute(ctx context.Context, cmd ctl.Command) error {
	return cmd.Run(&m.cfg)
}

func (m *Manager) finish(cmd ctl.Command, err error) {
	defer cmd.Req.Close()
	if cmd.Req.Completed() {
		if err != nil {
			m.logger.Warn().Err(err).Str("message_id", cmd.MessageID).Msg("error after final reply")
		}
		return
	}

	var reply message.Payload = &message.NetOk{}
	if err != nil {
		reply = toNetErr(err)
	}
	if err := cmd.Req.ReplyComplete(reply); err != nil {
		m.logger.Debug().Err(err).Str("message_id", cmd.MessageID).Msg("final reply not delivered")
	}
}

func toNetErr(err error) *message.NetErr {
	var netErr *message.NetErr
	if errors.As(err, &netErr) {
		return netErr
	}
	if errors.Is(err, fs.ErrNotExist) {
		return message.Errorf(message.ErrNotFound, "%v", err)
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return message.Errorf(message.ErrIo, "%v", err)
	}
	return message.Errorf(message.ErrInternal, "%v", err)
}
