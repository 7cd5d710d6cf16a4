package waitset

// Event makes one status kind of one entity waitable on its own: attach it
// to a WaitSet to be woken when that particular status is raised.
//
// A WaitSet caches a shallow copy of every attached Event, so the caller
// may discard (or close the entity behind) an Event between waits without
// leaving the WaitSet pointing at freed state.
type Event struct {
	Kind Status

	cond *statusCondition
}

// StatusEvent returns a waitable event for one of the subscriber's status
// kinds, e.g. StatusSamplesLost.
func (s *Subscriber) StatusEvent(kind Status) *Event {
	return &Event{Kind: kind, cond: s.cond}
}

// StatusEvent returns a waitable event for one of the publisher's status
// kinds, e.g. StatusError.
func (p *Publisher) StatusEvent(kind Status) *Event {
	return &Event{Kind: kind, cond: p.cond}
}
