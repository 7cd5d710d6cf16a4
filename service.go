package waitset

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/a2y-d5l/go-waitset/message"
)

// ServiceOption customizes one service.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	codec    message.Codec
	bufSize  int
	batchMax int
}

// WithServiceCodec overrides the session's default codec for this service's
// requests and replies.
func WithServiceCodec(c message.Codec) ServiceOption {
	return func(cfg *serviceConfig) {
		if c != nil {
			cfg.codec = c
		}
	}
}

// Service is the responder half of the request/reply correlator: an
// unfiltered request subscription paired with a reply writer. Wait on the
// service to learn a request arrived, take it, and answer it with
// SendResponse using the request's correlation pair.
type Service struct {
	session *Session
	name    string

	requestSub *Subscriber
	replyPub   *Publisher

	closed atomic.Bool
}

// NewService creates a responder for the named service.
func (s *Session) NewService(service string, opts ...ServiceOption) (*Service, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	cfg := serviceConfig{
		codec:    s.cfg.DefaultCodec,
		bufSize:  s.cfg.ReaderBufferSize,
		batchMax: s.cfg.LoanBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sub, err := s.newSubscriber(requestTopic(service), nil, subscriberConfig{
		codec:    cfg.codec,
		bufSize:  cfg.bufSize,
		batchMax: cfg.batchMax,
	})
	if err != nil {
		return nil, fmt.Errorf("service %q request reader: %w", service, err)
	}

	pub, err := s.newPublisher(replyTopic(service), publisherConfig{codec: cfg.codec})
	if err != nil {
		sub.closed.Store(true)
		_ = sub.close()
		return nil, fmt.Errorf("service %q reply writer: %w", service, err)
	}

	s.log.Debug("service created", "service", service, "writer_id", pub.id)
	return &Service{
		session:    s,
		name:       service,
		requestSub: sub,
		replyPub:   pub,
	}, nil
}

// Name returns the service name this responder serves.
func (s *Service) Name() string { return s.name }

// TakeRequest retrieves one pending request, decoding it into out and
// returning its (identity, sequence) correlation pair. Reports whether a
// request was taken.
func (s *Service) TakeRequest(out any) (message.RequestID, bool, error) {
	if s.closed.Load() {
		return message.RequestID{}, false, ErrClosed
	}

	var id message.RequestID
	n, err := s.requestSub.take(1, func(data []byte, env message.Envelope, _ message.Info) bool {
		if err := s.requestSub.codec.Decode(data, out); err != nil {
			s.session.log.Debug("skipping undecodable request", "service", s.name, "err", err)
			return false
		}
		id = env.Originator()
		return true
	})
	return id, n > 0, err
}

// SendResponse encodes resp and sends it as the reply to the request
// identified by id. The reply carries id back bit-identically, and only the
// requester whose identity matches will receive it.
func (s *Service) SendResponse(id message.RequestID, resp any) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if id.IsZero() {
		return fmt.Errorf("%w: zero request id", ErrInvalidArgument)
	}

	env := message.Envelope{
		Writer:          s.replyPub.id,
		Sequence:        s.replyPub.seq.Inc(),
		Related:         id,
		Request:         false,
		SourceTimestamp: time.Now(),
	}
	subject := string(replyTopic(s.name)) + "." + id.Writer.String()
	return s.replyPub.publishEnvelope(subject, resp, env)
}

// Close releases the service's reader and writer. Closing a service a
// WaitSet is blocked on fails with ErrDeleteWhileWaiting.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.session.updateMu.Lock()
	defer s.session.updateMu.Unlock()

	if err := s.requestSub.close(); err != nil {
		s.closed.Store(false)
		return err
	}
	s.requestSub.closed.Store(true)

	var merr multiErr
	if err := s.replyPub.close(); err != nil {
		merr.add(err)
	}
	s.replyPub.closed.Store(true)
	return merr.err()
}
