package waitset

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/a2y-d5l/go-waitset/internal/syncx"
	"github.com/a2y-d5l/go-waitset/message"
)

// PublisherOption customizes one publisher.
type PublisherOption func(*publisherConfig)

type publisherConfig struct {
	codec message.Codec
}

// WithPublisherCodec overrides the session's default codec for this
// publisher.
func WithPublisherCodec(c message.Codec) PublisherOption {
	return func(cfg *publisherConfig) {
		if c != nil {
			cfg.codec = c
		}
	}
}

// Publisher writes samples to one topic. Every sample is stamped with the
// publisher's identity and a locally assigned, monotonically increasing
// sequence number.
type Publisher struct {
	session *Session
	topic   Topic
	codec   message.Codec
	log     *slog.Logger

	id  message.Identity
	seq syncx.Counter

	cond *statusCondition

	closed atomic.Bool
}

// NewPublisher creates a publisher on topic using the session's default
// codec unless overridden.
func (s *Session) NewPublisher(topic Topic, opts ...PublisherOption) (*Publisher, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	cfg := publisherConfig{codec: s.cfg.DefaultCodec}
	for _, opt := range opts {
		opt(&cfg)
	}
	return s.newPublisher(topic, cfg)
}

// newPublisher is the constructor shared with the correlator; the caller
// holds updateMu.
func (s *Session) newPublisher(topic Topic, cfg publisherConfig) (*Publisher, error) {
	if !topic.valid() {
		return nil, fmt.Errorf("%w: invalid topic %q", ErrInvalidArgument, topic)
	}
	if s.conn() == nil {
		return nil, ErrClosed
	}

	p := &Publisher{
		session: s,
		topic:   topic,
		codec:   cfg.codec,
		log:     s.log,
		id:      message.NewIdentity(),
		cond:    newStatusCondition(),
	}
	s.log.Debug("publisher created", "topic", topic, "writer_id", p.id)
	return p, nil
}

// Topic returns the topic this publisher writes to.
func (p *Publisher) Topic() Topic { return p.topic }

// Identity returns the writer identity stamped on every sample.
func (p *Publisher) Identity() message.Identity { return p.id }

// Publish encodes v and writes it, returning the sequence number assigned
// to the sample.
func (p *Publisher) Publish(v any) (int64, error) {
	seq := p.seq.Inc()
	env := message.Envelope{
		Writer:          p.id,
		Sequence:        seq,
		Request:         true,
		SourceTimestamp: time.Now(),
	}
	if err := p.publishEnvelope(string(p.topic), v, env); err != nil {
		return 0, err
	}
	return seq, nil
}

// publishEnvelope encodes v and writes it to subject with env's headers.
// Write failures raise the error status on the publisher's condition.
func (p *Publisher) publishEnvelope(subject string, v any, env message.Envelope) error {
	if p.closed.Load() {
		return ErrClosed
	}
	nc := p.session.conn()
	if nc == nil {
		return ErrClosed
	}

	data, err := p.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, val := range env.Headers() {
		msg.Header.Set(k, val)
	}
	msg.Header.Set(message.HeaderContentType, p.codec.ContentType())

	if err := nc.PublishMsg(msg); err != nil {
		p.cond.raise(StatusError)
		return fmt.Errorf("publish %q: %w", subject, err)
	}
	return nil
}

// Close releases the publisher from any WaitSet observing its status
// events.
func (p *Publisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	p.session.updateMu.Lock()
	defer p.session.updateMu.Unlock()

	if err := p.close(); err != nil {
		p.closed.Store(false)
		return err
	}
	return nil
}

// close tears the publisher down; the caller holds updateMu and has won the
// closed flag.
func (p *Publisher) close() error {
	p.cond.setDeleted(true)
	if err := p.cond.invalidate(); err != nil {
		p.cond.setDeleted(false)
		return err
	}
	return nil
}
