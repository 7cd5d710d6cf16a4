package waitset

import "strings"

// Topic names a subject on the transport. Multi-level names use dots,
// e.g. "sensor.readings.v1".
type Topic string

func (t Topic) valid() bool {
	s := string(t)
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return false
	}
	if strings.Contains(s, "..") {
		return false
	}
	return !strings.ContainsAny(s, " \t*>")
}

// Topic names used by the request/reply correlator: requests flow on the
// "rq." prefix, replies on "rr.", with reply subjects additionally scoped
// per requester (see ContentFilter).
func requestTopic(service string) Topic { return Topic("rq." + service) }
func replyTopic(service string) Topic   { return Topic("rr." + service) }
