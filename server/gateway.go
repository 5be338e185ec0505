// Package server implements the ctl gateway: the listener that accepts
// control connections, authenticates them and forwards their commands to the
// manager inbox.
//
// Connection lifecycle:
//
//	Accept → handshake (bounded by HandshakeTimeout)
//	  → Receiving: read one request, build a ctl.Command, submit it to the inbox
//	  → Sending:   drain the connection's reply queue onto the socket
//	  → Sent:      the transaction completed, the connection is closed
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"supctl/config"
	"supctl/ctl"
	"supctl/metrics"
	"supctl/registry"
	"supctl/transport"
)

// Gateway owns the ctl listener. It runs as one accept goroutine plus one
// goroutine per connection.
type Gateway struct {
	cfg      config.Gateway
	inbox    *ctl.Inbox
	dispatch map[string]Builder
	logger   zerolog.Logger

	registry     registry.Registry
	registryName string
	registryTTL  time.Duration
	version      string

	listener net.Listener
	wg       sync.WaitGroup // tracks open connections for Shutdown
	shutdown atomic.Bool
	cancel   context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewGateway(cfg config.Gateway, inbox *ctl.Inbox, logger zerolog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		inbox:    inbox,
		dispatch: DefaultDispatch(),
		logger:   logger.With().Str("component", "ctl-gateway").Logger(),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Handle installs or replaces the builder for messageID. It must be called
// before Serve.
func (g *Gateway) Handle(messageID string, b Builder) {
	g.dispatch[messageID] = b
}

// UseRegistry announces the gateway under name while it serves. version is
// published with the instance.
func (g *Gateway) UseRegistry(reg registry.Registry, name string, ttl time.Duration, version string) {
	g.registry = reg
	g.registryName = name
	g.registryTTL = ttl
	g.version = version
}

// Listen binds the configured address. Serve calls it when needed; calling
// it first lets the caller learn the bound address.
func (g *Gateway) Listen() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		return err
	}
	g.listener = ln
	return nil
}

func (g *Gateway) Addr() net.Addr {
	ln := g.getListener()
	if ln == nil {
		return nil
	}
	return ln.Addr()
}

func (g *Gateway) getListener() net.Listener {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listener
}

func (g *Gateway) stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (g *Gateway) advertiseAddr() string {
	if g.cfg.AdvertiseAddr != "" {
		return g.cfg.AdvertiseAddr
	}
	return g.listener.Addr().String()
}

// Serve accepts connections until ctx is done or Shutdown is called. It
// returns nil on an orderly stop.
//
// Connections run under their own context, which outlives the accept loop:
// it is cancelled by the parent ctx or when Shutdown gives up waiting, so a
// transaction in flight during Shutdown still gets its final reply.
func (g *Gateway) Serve(ctx context.Context) error {
	if err := g.Listen(); err != nil {
		return err
	}
	connCtx, connCancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.cancel = connCancel
	g.mu.Unlock()

	acceptCtx, acceptCancel := context.WithCancel(ctx)
	defer acceptCancel()

	if g.registry != nil {
		ttl := int64(g.registryTTL / time.Second)
		instance := registry.Instance{Addr: g.advertiseAddr(), Weight: 1, Version: g.version}
		if err := g.registry.Register(acceptCtx, g.registryName, instance, ttl); err != nil {
			g.listener.Close()
			connCancel()
			return fmt.Errorf("server: register gateway: %w", err)
		}
	}

	go func() {
		<-acceptCtx.Done()
		g.markShutdown()
		g.listener.Close()
	}()

	g.logger.Info().Str("addr", g.listener.Addr().String()).Msg("ctl gateway listening")
	for {
		conn, err := g.listener.Accept()
		if err != nil {
			if g.shutdown.Load() {
				return nil
			}
			connCancel()
			return err
		}
		if !g.track(conn) {
			conn.Close()
			return nil
		}
		go g.handleConn(connCtx, conn)
	}
}

func (g *Gateway) markShutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shutdown.Store(true)
}

// track registers conn with the WaitGroup. It refuses once shutdown is
// set, so no Add races with Shutdown's Wait.
func (g *Gateway) track(conn net.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdown.Load() {
		return false
	}
	g.wg.Add(1)
	g.conns[conn] = struct{}{}
	return true
}

func (g *Gateway) untrack(conn net.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, conn)
}

func (g *Gateway) handleConn(ctx context.Context, raw net.Conn) {
	defer g.wg.Done()
	defer g.untrack(raw)
	defer raw.Close()

	metrics.ConnectionOpened()
	result := "ok"
	defer func() { metrics.ConnectionClosed(result) }()

	logger := g.logger.With().Str("remote", raw.RemoteAddr().String()).Logger()
	conn := transport.NewConn(raw)

	if err := handshake(ctx, conn, g.cfg.AuthKey, g.cfg.HandshakeTimeout); err != nil {
		result = "handshake_failed"
		metrics.RecordHandshake(handshakeResult(err))
		logger.Debug().Err(err).Msg("handshake failed")
		return
	}
	metrics.RecordHandshake("ok")

	if err := newHandler(conn, g.inbox, g.dispatch, logger).run(ctx); err != nil {
		result = "error"
		if errors.Is(err, transport.ErrConnectionClosed) {
			result = "closed"
		}
		logger.Debug().Err(err).Msg("connection ended")
		return
	}
	logger.Trace().Msg("connection complete")
}

func handshakeResult(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrHandshakeTimeout):
		return "timeout"
	case errors.Is(err, transport.ErrConnectionClosed):
		return "closed"
	}
	return "invalid"
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry so clients stop picking this gateway
//  2. Stop accepting connections
//  3. Wait for open connections to finish their transaction
//
// Connections still open after timeout are closed and an error is returned.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	ln := g.getListener()
	if g.registry != nil && ln != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := g.registry.Deregister(ctx, g.registryName, g.advertiseAddr()); err != nil {
			g.logger.Warn().Err(err).Msg("deregister gateway")
		}
		cancel()
	}

	g.markShutdown()
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.stop()
		return nil
	case <-time.After(timeout):
		g.stop()
		g.mu.Lock()
		for conn := range g.conns {
			conn.Close()
		}
		g.mu.Unlock()
		return fmt.Errorf("server: open connections did not finish within %s", timeout)
	}
}
