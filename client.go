package waitset

import (
	"fmt"
	"sync/atomic"

	"github.com/a2y-d5l/go-waitset/message"
)

// ClientOption customizes one client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	codec    message.Codec
	bufSize  int
	batchMax int
}

// WithClientCodec overrides the session's default codec for this client's
// requests and replies.
func WithClientCodec(c message.Codec) ClientOption {
	return func(cfg *clientConfig) {
		if c != nil {
			cfg.codec = c
		}
	}
}

// Client is the requester half of the request/reply correlator: a request
// writer paired with a reply subscription filtered down to the replies
// addressed to this client's identity. Wait on the client to learn a reply
// arrived, then drain it with TakeResponse.
type Client struct {
	session *Session
	service string

	requestPub *Publisher
	replySub   *Subscriber
	filter     *ContentFilter

	closed atomic.Bool
}

// NewClient creates a client for the named service.
func (s *Session) NewClient(service string, opts ...ClientOption) (*Client, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	cfg := clientConfig{
		codec:    s.cfg.DefaultCodec,
		bufSize:  s.cfg.ReaderBufferSize,
		batchMax: s.cfg.LoanBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	pub, err := s.newPublisher(requestTopic(service), publisherConfig{codec: cfg.codec})
	if err != nil {
		return nil, fmt.Errorf("client %q request writer: %w", service, err)
	}

	filter := newReplyFilter(service, pub.id)
	sub, err := s.newSubscriber(replyTopic(service), filter, subscriberConfig{
		codec:    cfg.codec,
		bufSize:  cfg.bufSize,
		batchMax: cfg.batchMax,
	})
	if err != nil {
		pub.closed.Store(true)
		_ = pub.close()
		return nil, fmt.Errorf("client %q reply reader: %w", service, err)
	}

	s.log.Debug("client created", "service", service, "writer_id", pub.id)
	return &Client{
		session:    s,
		service:    service,
		requestPub: pub,
		replySub:   sub,
		filter:     filter,
	}, nil
}

// Service returns the service name this client talks to.
func (c *Client) Service() string { return c.service }

// Identity returns the identity stamped on this client's requests; replies
// are matched against it.
func (c *Client) Identity() message.Identity { return c.requestPub.Identity() }

// ReplyFilter returns the content filter restricting this client's reply
// subscription.
func (c *Client) ReplyFilter() *ContentFilter { return c.filter }

// SendRequest encodes req and sends it, returning the sequence number that,
// together with the client's identity, correlates the eventual reply.
func (c *Client) SendRequest(req any) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	return c.requestPub.Publish(req)
}

// TakeResponse retrieves one reply addressed to this client, decoding it
// into out and returning the (identity, sequence) pair of the request it
// answers. Reports whether a reply was taken.
func (c *Client) TakeResponse(out any) (message.RequestID, bool, error) {
	if c.closed.Load() {
		return message.RequestID{}, false, ErrClosed
	}

	var id message.RequestID
	n, err := c.replySub.take(1, func(data []byte, env message.Envelope, _ message.Info) bool {
		if err := c.replySub.codec.Decode(data, out); err != nil {
			c.session.log.Debug("skipping undecodable reply", "service", c.service, "err", err)
			return false
		}
		id = env.Originator()
		return true
	})
	return id, n > 0, err
}

// Close releases the client's writer and reply subscription. Closing a
// client a WaitSet is blocked on fails with ErrDeleteWhileWaiting.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	c.session.updateMu.Lock()
	defer c.session.updateMu.Unlock()

	if err := c.replySub.close(); err != nil {
		c.closed.Store(false)
		return err
	}
	c.replySub.closed.Store(true)

	var merr multiErr
	if err := c.requestPub.close(); err != nil {
		merr.add(err)
	}
	c.requestPub.closed.Store(true)
	return merr.err()
}
