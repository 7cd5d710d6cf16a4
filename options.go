package waitset

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/a2y-d5l/go-waitset/message"
)

// Option configures the Session.
type Option func(*config)

// WithHost sets the listen host for the embedded server (default 127.0.0.1).
func WithHost(h string) Option { return func(c *config) { c.Host = h } }

// WithPort sets the server port. Use WithRandomPort for dynamic.
func WithPort(p int) Option { return func(c *config) { c.Port = p } }

// WithRandomPort selects a random free port for the embedded server.
func WithRandomPort() Option { return func(c *config) { c.Port = -1 } }

// WithTLS enables TLS for the embedded server and client.
func WithTLS(cfg *tls.Config) Option { return func(c *config) { c.TLS = cfg } }

// WithMaxPayload sets the server max payload size (bytes).
func WithMaxPayload(bytes int) Option { return func(c *config) { c.MaxPayload = bytes } }

// WithDefaultCodec overrides the default codec (JSON by default).
func WithDefaultCodec(cd message.Codec) Option { return func(c *config) { c.DefaultCodec = cd } }

// WithConnectTimeout sets the client connect timeout.
func WithConnectTimeout(d time.Duration) Option { return func(c *config) { c.ConnectTimeout = d } }

// WithReconnectWait sets the fixed reconnect wait (min).
func WithReconnectWait(min time.Duration) Option { return func(c *config) { c.ReconnectWaitMin = min } }

// WithDrainTimeout sets how long Close waits for client drain before hard-close.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *config) {
		c.DrainTimeout = d
		c.ServerShutdownMaxWait = d
	}
}

// WithServerReadyTimeout sets how long to wait for the embedded server to be ready.
func WithServerReadyTimeout(d time.Duration) Option {
	return func(c *config) { c.ServerReadyTimeout = d }
}

// WithReaderBufferSize sets the default per-subscriber arrival buffer size.
func WithReaderBufferSize(n int) Option { return func(c *config) { c.ReaderBufferSize = n } }

// WithLoanBatchSize sets the default max number of samples pulled per loan.
func WithLoanBatchSize(n int) Option { return func(c *config) { c.LoanBatchSize = n } }

// WithLogger injects a slog logger.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.log = l } }

// WithBasicAuth sets user/password auth for the embedded server & client.
func WithBasicAuth(user, pass string) Option {
	return func(c *config) { c.User, c.Pass = user, pass }
}

// WithTokenAuth sets token auth for the embedded server & client.
func WithTokenAuth(token string) Option { return func(c *config) { c.Token = token } }
