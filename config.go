package waitset

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/a2y-d5l/go-waitset/message"
)

// config holds all tunables for the Session (via functional options).
type config struct {
	// Server
	Host                  string
	Port                  int // -1 selects a random free port
	TLS                   *tls.Config
	MaxPayload            int
	ServerReadyTimeout    time.Duration
	ServerShutdownMaxWait time.Duration

	// Client
	ClientName          string
	ConnectTimeout      time.Duration
	ConnectFlushTimeout time.Duration
	ReconnectWaitMin    time.Duration
	DrainTimeout        time.Duration

	// Defaults & behavior
	DefaultCodec     message.Codec
	ReaderBufferSize int // per-subscriber bounded arrival buffer
	LoanBatchSize    int // max samples pulled per loan

	// Auth (optional)
	User  string
	Pass  string
	Token string

	// Logging
	log *slog.Logger
}

func defaultConfig() config {
	return config{
		Host:                  "127.0.0.1",
		Port:                  -1, // dynamic port by default
		MaxPayload:            0,  // nats default
		ServerReadyTimeout:    5 * time.Second,
		ServerShutdownMaxWait: 5 * time.Second,

		ClientName:          "go-waitset",
		ConnectTimeout:      2 * time.Second,
		ConnectFlushTimeout: 2 * time.Second,
		ReconnectWaitMin:    250 * time.Millisecond,
		DrainTimeout:        5 * time.Second,

		DefaultCodec:     message.JSONCodec,
		ReaderBufferSize: 1024,
		LoanBatchSize:    256,
	}
}
