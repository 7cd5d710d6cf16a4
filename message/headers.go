package message

import (
	"fmt"
	"strconv"
	"time"
)

// Standard header keys carried on every sample.
const (
	HeaderContentType     = "Content-Type"
	HeaderWriterID        = "X-Writer-Id"
	HeaderSequence        = "X-Sequence-Number"
	HeaderRelatedWriterID = "X-Related-Writer-Id"
	HeaderRelatedSequence = "X-Related-Sequence-Number"
	HeaderSourceTimestamp = "X-Source-Timestamp"
)

// Headers is a flat key/value view of a sample's transport headers.
type Headers map[string]string

func (h Headers) Get(key string) string { return h[key] }
func (h Headers) Set(key, value string) { h[key] = value }
func (h Headers) Has(key string) bool   { _, ok := h[key]; return ok }

// Envelope is the request/reply metadata stamped on a sample: the identity
// and sequence number of the writer that produced it, and, for replies, the
// identity and sequence number of the request it answers.
type Envelope struct {
	Writer          Identity
	Sequence        int64
	Related         RequestID
	Request         bool
	SourceTimestamp time.Time
}

// Originator returns the (identity, sequence) pair identifying the request
// this sample belongs to: a request's own writer stamp, or the related stamp
// a reply carries back.
func (e Envelope) Originator() RequestID {
	if e.Request {
		return RequestID{Writer: e.Writer, Sequence: e.Sequence}
	}
	return e.Related
}

// Headers renders the envelope into transport headers.
func (e Envelope) Headers() Headers {
	h := make(Headers, 6)
	h.Set(HeaderWriterID, e.Writer.String())
	h.Set(HeaderSequence, strconv.FormatInt(e.Sequence, 10))
	if !e.Request {
		h.Set(HeaderRelatedWriterID, e.Related.Writer.String())
		h.Set(HeaderRelatedSequence, strconv.FormatInt(e.Related.Sequence, 10))
	}
	if !e.SourceTimestamp.IsZero() {
		h.Set(HeaderSourceTimestamp, e.SourceTimestamp.Format(time.RFC3339Nano))
	}
	return h
}

// DecodeEnvelope parses the envelope out of a sample's headers. Samples
// without a writer stamp are malformed; samples without related headers are
// requests.
func DecodeEnvelope(h Headers) (Envelope, error) {
	var env Envelope

	w := h.Get(HeaderWriterID)
	if w == "" {
		return env, fmt.Errorf("sample carries no writer identity")
	}
	id, err := ParseIdentity(w)
	if err != nil {
		return env, fmt.Errorf("writer identity: %w", err)
	}
	sn, err := strconv.ParseInt(h.Get(HeaderSequence), 10, 64)
	if err != nil {
		return env, fmt.Errorf("sequence number: %w", err)
	}
	env.Writer = id
	env.Sequence = sn
	env.Request = true

	if rw := h.Get(HeaderRelatedWriterID); rw != "" {
		rid, err := ParseIdentity(rw)
		if err != nil {
			return env, fmt.Errorf("related writer identity: %w", err)
		}
		rsn, err := strconv.ParseInt(h.Get(HeaderRelatedSequence), 10, 64)
		if err != nil {
			return env, fmt.Errorf("related sequence number: %w", err)
		}
		env.Related = RequestID{Writer: rid, Sequence: rsn}
		env.Request = false
	}

	if ts := h.Get(HeaderSourceTimestamp); ts != "" {
		// A stamp we cannot parse is dropped, not fatal.
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			env.SourceTimestamp = t
		}
	}

	return env, nil
}
