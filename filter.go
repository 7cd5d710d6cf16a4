package waitset

import "github.com/a2y-d5l/go-waitset/message"

// ContentFilter restricts a reply subscription to the samples addressed to
// one particular requester. The expression selects samples whose related
// writer identity matches the requester's; on the transport it is realized
// by scoping the reply subject with the same 32 hex digits, so non-matching
// replies are never delivered at all. The pipeline still re-validates every
// taken sample against the expression.
type ContentFilter struct {
	// Name uniquely identifies the filtered subscription: the reply topic
	// suffixed with the owning writer's hex identity.
	Name string
	// Expression is the filter predicate in its canonical form:
	// "related.writer_id = &hex(<32 hex digits>)".
	Expression string

	base  Topic
	owner message.Identity
}

func newReplyFilter(service string, owner message.Identity) *ContentFilter {
	hx := owner.String()
	base := replyTopic(service)
	return &ContentFilter{
		Name:       string(base) + "_" + hx,
		Expression: "related.writer_id = &hex(" + hx + ")",
		base:       base,
		owner:      owner,
	}
}

// subject returns the identity-scoped subject the filtered subscription
// listens on.
func (f *ContentFilter) subject() string {
	return string(f.base) + "." + f.owner.String()
}

// match reports whether a sample passes the filter: it must be a reply and
// its related writer identity must equal the owner's.
func (f *ContentFilter) match(env message.Envelope) bool {
	return !env.Request && env.Related.Writer == f.owner
}
