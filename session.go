package waitset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	nserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/a2y-d5l/go-waitset/internal/embeddednats"
)

// Session owns the embedded nats-server, the client connection, and the
// per-context update lock that serializes entity creation and destruction.
// It is safe for concurrent use.
type Session struct {
	mu  sync.RWMutex
	cfg config
	log *slog.Logger

	srv *embeddednats.Server
	nc  *nats.Conn

	// updateMu serializes entity create/destroy so that graph updates are
	// never observed half-done by a concurrent wait.
	updateMu sync.Mutex

	started atomic.Bool
	closed  atomic.Bool
}

// New starts an embedded NATS server, waits until it's ready, and connects a
// client. Defaults suit local use: loopback host, dynamic port, JSON codec.
func New(ctx context.Context, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = slog.Default()
	}

	// Server options
	sopts := &nserver.Options{
		Host:                  cfg.Host,
		Port:                  cfg.Port, // -1 => dynamic
		NoSigs:                true,     // embedded
		MaxPayload:            int32(cfg.MaxPayload),
		JetStream:             false,
		DisableShortFirstPing: true,
	}
	if cfg.TLS != nil {
		sopts.TLSConfig = cfg.TLS
		sopts.TLS = true
	}
	if cfg.User != "" {
		sopts.Username = cfg.User
		sopts.Password = cfg.Pass
	}
	if cfg.Token != "" {
		sopts.Authorization = cfg.Token
	}

	srv, err := embeddednats.Start(sopts, cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	readyCtx, cancel := context.WithTimeout(ctx, cfg.ServerReadyTimeout)
	defer cancel()
	if err := srv.Ready(readyCtx); err != nil {
		_ = srv.Shutdown(context.Background(), cfg.ServerShutdownMaxWait)
		return nil, fmt.Errorf("nats server not ready: %w", err)
	}

	// Client options
	copts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1), // infinite
		nats.ReconnectWait(cfg.ReconnectWaitMin),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				cfg.log.Warn("nats disconnected", "err", err)
			} else {
				cfg.log.Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) { cfg.log.Info("reconnected", "url", nc.ConnectedUrl()) }),
		nats.ClosedHandler(func(_ *nats.Conn) { cfg.log.Info("connection closed") }),
	}
	if cfg.TLS != nil {
		copts = append(copts, nats.Secure(cfg.TLS))
	}
	if cfg.User != "" {
		copts = append(copts, nats.UserInfo(cfg.User, cfg.Pass))
	}
	if cfg.Token != "" {
		copts = append(copts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(srv.ClientURL(), copts...)
	if err != nil {
		_ = srv.Shutdown(context.Background(), cfg.ServerShutdownMaxWait)
		return nil, fmt.Errorf("nats client connect: %w", err)
	}
	if err := nc.FlushTimeout(cfg.ConnectFlushTimeout); err != nil {
		nc.Close()
		_ = srv.Shutdown(context.Background(), cfg.ServerShutdownMaxWait)
		return nil, fmt.Errorf("initial flush: %w", err)
	}

	s := &Session{cfg: cfg, log: cfg.log, srv: srv, nc: nc}
	s.started.Store(true)

	cfg.log.Info("go-waitset session started",
		"url", srv.ClientURL(),
		"default_codec", cfg.DefaultCodec.ContentType(),
	)

	return s, nil
}

// Healthy returns an error if the session is not in a usable state.
func (s *Session) Healthy(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case !s.started.Load():
		return fmt.Errorf("%w: session not started", ErrUnhealthy)
	case s.closed.Load():
		return fmt.Errorf("%w: session already closed", ErrUnhealthy)
	case s.nc == nil:
		return fmt.Errorf("%w: client not initialized", ErrUnhealthy)
	case s.srv == nil:
		return fmt.Errorf("%w: server not initialized", ErrUnhealthy)
	case s.nc.Status() != nats.CONNECTED:
		return fmt.Errorf("%w: client not connected", ErrUnhealthy)
	default:
		return nil
	}
}

// Close drains the client and shuts down the server gracefully.
func (s *Session) Close(ctx context.Context) error {
	if !s.started.Load() || !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	s.log.Info("closing session...")

	s.mu.Lock()
	nc := s.nc
	srv := s.srv
	drainTO := s.cfg.DrainTimeout
	maxWait := s.cfg.ServerShutdownMaxWait
	s.mu.Unlock()

	var merr multiErr

	if nc != nil {
		done := make(chan error, 1)
		go func() { done <- nc.Drain() }()
		select {
		case err := <-done:
			if err != nil {
				merr.add(fmt.Errorf("nats drain: %w", err))
			}
		case <-time.After(drainTO):
			merr.add(fmt.Errorf("nats drain timeout after %s", drainTO))
			nc.Close()
		case <-ctx.Done():
			merr.add(fmt.Errorf("nats drain canceled: %w", ctx.Err()))
			nc.Close()
		}
	}

	if srv != nil {
		if err := srv.Shutdown(ctx, maxWait); err != nil {
			merr.add(err)
		}
	}

	s.mu.Lock()
	s.nc, s.srv = nil, nil
	s.mu.Unlock()

	if err := merr.err(); err != nil {
		return err
	}

	s.log.Info("session closed.")

	return nil
}

// conn returns the client connection, or nil after Close.
func (s *Session) conn() *nats.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nc
}
