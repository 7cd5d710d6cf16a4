// Package embeddednats runs the in-process nats-server a Session owns.
package embeddednats

import (
	"context"
	"fmt"
	"time"

	nserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const defaultPollEvery = 50 * time.Millisecond

// Server is a running embedded nats-server. Readiness is probed with real
// client dials, so Ready returning nil means a connection attempt will
// succeed, not merely that the listener goroutine was scheduled.
type Server struct {
	s *nserver.Server

	// dialTimeout bounds each readiness probe dial; the session passes its
	// client connect timeout so the probe and the eventual real connect
	// agree on what "reachable" means.
	dialTimeout time.Duration
	pollEvery   time.Duration
}

// Start creates the server and launches it in its own goroutine.
func Start(opts *nserver.Options, dialTimeout time.Duration) (*Server, error) {
	ns, err := nserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("nats server create: %w", err)
	}
	srv := &Server{
		s:           ns,
		dialTimeout: dialTimeout,
		pollEvery:   defaultPollEvery,
	}
	if srv.dialTimeout <= 0 {
		srv.dialTimeout = 100 * time.Millisecond
	}
	go ns.Start()
	return srv, nil
}

// ClientURL returns the nats:// URL clients should connect to.
func (e *Server) ClientURL() string { return e.s.ClientURL() }

// Ready blocks until the server accepts client connections or the context
// expires.
func (e *Server) Ready(ctx context.Context) error {
	t := time.NewTicker(e.pollEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if e.canConnect() {
				return nil
			}
		}
	}
}

func (e *Server) canConnect() bool {
	nc, err := nats.Connect(e.s.ClientURL(), nats.Timeout(e.dialTimeout))
	if err != nil {
		return false
	}
	nc.Close()
	return true
}

// Shutdown signals the server to stop and waits up to maxWait for it.
func (e *Server) Shutdown(ctx context.Context, maxWait time.Duration) error {
	e.s.Shutdown()
	wait := make(chan struct{}, 1)
	go func() { e.s.WaitForShutdown(); wait <- struct{}{} }()
	select {
	case <-wait:
		return nil
	case <-time.After(maxWait):
		return fmt.Errorf("server wait timeout after %s", maxWait)
	case <-ctx.Done():
		return fmt.Errorf("server wait canceled: %w", ctx.Err())
	}
}
