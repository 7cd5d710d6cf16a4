package waitset

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/a2y-d5l/go-waitset/message"
)

// SubscriberOption customizes one subscriber.
type SubscriberOption func(*subscriberConfig)

type subscriberConfig struct {
	codec    message.Codec
	bufSize  int
	batchMax int
}

// WithSubscriberCodec overrides the session's default codec for this
// subscriber.
func WithSubscriberCodec(c message.Codec) SubscriberOption {
	return func(cfg *subscriberConfig) {
		if c != nil {
			cfg.codec = c
		}
	}
}

// WithArrivalBuffer sets the subscriber's bounded arrival buffer depth.
// Arrivals beyond it are dropped and counted as samples lost.
func WithArrivalBuffer(n int) SubscriberOption {
	return func(cfg *subscriberConfig) {
		if n > 0 {
			cfg.bufSize = n
		}
	}
}

// WithLoanBatch caps how many buffered samples one loan pulls at a time.
func WithLoanBatch(n int) SubscriberOption {
	return func(cfg *subscriberConfig) {
		if n > 0 {
			cfg.batchMax = n
		}
	}
}

// Subscriber receives samples on one topic. Arrivals land in a bounded
// buffer; takes drain the buffer in loaned batches, one batch at a time,
// so samples are handed out in arrival order without copying.
//
// Take methods may be called concurrently with each other and with a
// WaitSet blocked on the subscriber.
type Subscriber struct {
	session *Session
	topic   Topic
	codec   message.Codec
	filter  *ContentFilter
	log     *slog.Logger

	cond *statusCondition

	ns *nats.Subscription
	ch chan *nats.Msg

	// loanMu guards the loan window. The window is either empty (no loan
	// outstanding) or holds one batch with a cursor into it.
	loanMu   sync.Mutex
	loanData []*nats.Msg
	loanNext int
	batchMax int

	closed atomic.Bool
}

// NewSubscriber creates a subscriber on topic using the session's default
// codec unless overridden.
func (s *Session) NewSubscriber(topic Topic, opts ...SubscriberOption) (*Subscriber, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	cfg := s.subscriberDefaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	return s.newSubscriber(topic, nil, cfg)
}

func (s *Session) subscriberDefaults() subscriberConfig {
	return subscriberConfig{
		codec:    s.cfg.DefaultCodec,
		bufSize:  s.cfg.ReaderBufferSize,
		batchMax: s.cfg.LoanBatchSize,
	}
}

// newSubscriber is the constructor shared with the correlator; the caller
// holds updateMu.
func (s *Session) newSubscriber(topic Topic, filter *ContentFilter, cfg subscriberConfig) (*Subscriber, error) {
	if !topic.valid() {
		return nil, fmt.Errorf("%w: invalid topic %q", ErrInvalidArgument, topic)
	}
	nc := s.conn()
	if nc == nil {
		return nil, ErrClosed
	}

	sub := &Subscriber{
		session:  s,
		topic:    topic,
		codec:    cfg.codec,
		filter:   filter,
		log:      s.log,
		cond:     newStatusCondition(),
		ch:       make(chan *nats.Msg, cfg.bufSize),
		batchMax: cfg.batchMax,
	}
	sub.cond.pending = sub.pendingDepth

	subject := string(topic)
	if filter != nil {
		subject = filter.subject()
	}
	ns, err := nc.Subscribe(subject, sub.onMessage)
	if err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", subject, err)
	}
	sub.ns = ns

	s.log.Debug("subscriber created", "topic", topic, "subject", subject)
	return sub, nil
}

// Topic returns the topic this subscriber receives on.
func (s *Subscriber) Topic() Topic { return s.topic }

func (s *Subscriber) onMessage(m *nats.Msg) {
	select {
	case s.ch <- m:
		s.cond.setDataAvailable(true)
	default:
		s.log.Warn("arrival buffer full, sample dropped", "topic", s.topic)
		s.cond.raise(StatusSamplesLost)
	}
}

// pendingDepth probes how many samples are retrievable right now, counting
// both the unread tail of the loan window and buffered arrivals.
func (s *Subscriber) pendingDepth() int {
	s.loanMu.Lock()
	rem := len(s.loanData) - s.loanNext
	s.loanMu.Unlock()
	return rem + len(s.ch)
}

// loanLocked pulls one batch of buffered arrivals into the loan window.
// The window must be empty. Returns the batch size. Caller holds loanMu.
func (s *Subscriber) loanLocked() int {
	if len(s.loanData) != 0 {
		panic("waitset: loan requested while a loan is outstanding")
	}
	for len(s.loanData) < s.batchMax {
		select {
		case m := <-s.ch:
			s.loanData = append(s.loanData, m)
		default:
			s.loanNext = 0
			return len(s.loanData)
		}
	}
	s.loanNext = 0
	return len(s.loanData)
}

// returnLoanLocked releases the current loan window. The window must be
// non-empty, and is cleared before anything else. Caller holds loanMu.
func (s *Subscriber) returnLoanLocked() {
	if len(s.loanData) == 0 {
		panic("waitset: loan returned with no loan outstanding")
	}
	clear(s.loanData)
	s.loanData = s.loanData[:0]
	s.loanNext = 0
}

// hasData loans a batch if the window is exhausted and reports whether any
// sample is retrievable. A loaded window is left in place for the next
// take. Used by the wait scan.
func (s *Subscriber) hasData() bool {
	s.loanMu.Lock()
	defer s.loanMu.Unlock()

	if s.loanNext < len(s.loanData) {
		return true
	}
	if len(s.loanData) > 0 {
		s.returnLoanLocked()
	}
	n := s.loanLocked()
	if n == 0 {
		s.cond.setDataAvailable(len(s.ch) > 0)
	}
	return n > 0
}

// take is the single consume loop: it walks the loan window, re-pulling a
// fresh batch whenever the cursor reaches the end, and hands each sample's
// payload and envelope to deliver. Samples with malformed envelopes, and
// samples deliver declines, are skipped without counting. An exhausted
// window is returned before exiting.
func (s *Subscriber) take(max int, deliver func(data []byte, env message.Envelope, info message.Info) bool) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	s.loanMu.Lock()
	defer s.loanMu.Unlock()

	taken := 0
	for taken < max {
		if s.loanNext >= len(s.loanData) {
			if len(s.loanData) > 0 {
				s.returnLoanLocked()
			}
			if s.loanLocked() == 0 {
				break
			}
		}

		m := s.loanData[s.loanNext]
		s.loanNext++

		env, err := message.DecodeEnvelope(flattenHeaders(m.Header))
		if err != nil {
			s.log.Debug("skipping malformed sample", "topic", s.topic, "err", err)
			continue
		}
		if s.filter != nil && !s.filter.match(env) {
			continue
		}

		info := message.Info{
			Publisher:         env.Writer,
			Sequence:          env.Sequence,
			SourceTimestamp:   env.SourceTimestamp,
			ReceivedTimestamp: time.Now(),
		}
		if !deliver(m.Data, env, info) {
			continue
		}
		taken++
	}

	if s.loanNext >= len(s.loanData) && len(s.loanData) > 0 {
		s.returnLoanLocked()
	}
	s.cond.setDataAvailable(s.loanNext < len(s.loanData) || len(s.ch) > 0)

	return taken, nil
}

// Take retrieves up to max samples, decoding each into the corresponding
// slot of out. Slots must be pointers. infos, if non-nil, receives the
// per-sample delivery metadata. Returns the number of samples taken; zero
// with a nil error means nothing was available.
func (s *Subscriber) Take(out []any, infos []message.Info, max int) (int, error) {
	if max <= 0 || len(out) < max || (infos != nil && len(infos) < max) {
		return 0, fmt.Errorf("%w: take buffers shorter than max=%d", ErrInvalidArgument, max)
	}

	i := 0
	return s.take(max, func(data []byte, _ message.Envelope, info message.Info) bool {
		if err := s.codec.Decode(data, out[i]); err != nil {
			s.log.Debug("skipping undecodable sample", "topic", s.topic, "err", err)
			return false
		}
		if infos != nil {
			infos[i] = info
		}
		i++
		return true
	})
}

// TakeMessage retrieves a single sample into out. Reports whether a sample
// was taken.
func (s *Subscriber) TakeMessage(out any, info *message.Info) (bool, error) {
	n, err := s.take(1, func(data []byte, _ message.Envelope, inf message.Info) bool {
		if err := s.codec.Decode(data, out); err != nil {
			s.log.Debug("skipping undecodable sample", "topic", s.topic, "err", err)
			return false
		}
		if info != nil {
			*info = inf
		}
		return true
	})
	return n > 0, err
}

// TakeSerialized retrieves a single sample's payload without decoding it.
func (s *Subscriber) TakeSerialized(info *message.Info) ([]byte, bool, error) {
	var payload []byte
	n, err := s.take(1, func(data []byte, _ message.Envelope, inf message.Info) bool {
		payload = make([]byte, len(data))
		copy(payload, data)
		if info != nil {
			*info = inf
		}
		return true
	})
	return payload, n > 0, err
}

// Close unsubscribes and releases the subscriber from any WaitSet. Closing
// a subscriber a WaitSet is blocked on fails with ErrDeleteWhileWaiting.
func (s *Subscriber) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.session.updateMu.Lock()
	defer s.session.updateMu.Unlock()

	if err := s.close(); err != nil {
		s.closed.Store(false)
		return err
	}
	return nil
}

// close tears the subscriber down; the caller holds updateMu and has won
// the closed flag.
func (s *Subscriber) close() error {
	s.cond.setDeleted(true)
	if err := s.cond.invalidate(); err != nil {
		s.cond.setDeleted(false)
		return err
	}

	var merr multiErr
	if s.ns != nil {
		if err := s.ns.Unsubscribe(); err != nil {
			merr.add(fmt.Errorf("unsubscribe %q: %w", s.topic, err))
		}
		s.ns = nil
	}

	s.loanMu.Lock()
	if len(s.loanData) > 0 {
		s.returnLoanLocked()
	}
	s.loanMu.Unlock()

	return merr.err()
}

func flattenHeaders(h nats.Header) message.Headers {
	out := make(message.Headers, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
