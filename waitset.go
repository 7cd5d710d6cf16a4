package waitset

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/a2y-d5l/go-waitset/internal/syncx"
)

// Forever makes Wait block until one of the attached entities becomes
// active. Any negative timeout behaves the same.
const Forever time.Duration = -1

type waitSetState int

const (
	stateFree waitSetState = iota
	stateAcquiring
	stateBlocked
	stateReleasing
	stateInvalidating
)

func (s waitSetState) String() string {
	switch s {
	case stateFree:
		return "free"
	case stateAcquiring:
		return "acquiring"
	case stateBlocked:
		return "blocked"
	case stateReleasing:
		return "releasing"
	case stateInvalidating:
		return "invalidating"
	default:
		return "unknown"
	}
}

// Waitables is the set of entities one Wait call blocks on. Wait nulls
// inactive entries in place, so after a successful call the non-nil entries
// are exactly the active ones. Callers repopulate the slices before the
// next call: entries must be non-nil, and a slice still holding nulled
// entries from a previous call fails with ErrInvalidArgument.
type Waitables struct {
	Subscribers []*Subscriber
	Guards      []*GuardCondition
	Services    []*Service
	Clients     []*Client
	Events      []*Event
}

func (w *Waitables) validate() error {
	for _, sub := range w.Subscribers {
		if sub == nil {
			return fmt.Errorf("%w: nil subscriber entry", ErrInvalidArgument)
		}
	}
	for _, g := range w.Guards {
		if g == nil {
			return fmt.Errorf("%w: nil guard entry", ErrInvalidArgument)
		}
	}
	for _, svc := range w.Services {
		if svc == nil {
			return fmt.Errorf("%w: nil service entry", ErrInvalidArgument)
		}
	}
	for _, c := range w.Clients {
		if c == nil {
			return fmt.Errorf("%w: nil client entry", ErrInvalidArgument)
		}
	}
	for _, e := range w.Events {
		if e == nil {
			return fmt.Errorf("%w: nil event entry", ErrInvalidArgument)
		}
	}
	return nil
}

// WaitSet aggregates a snapshot of conditions from subscribers, guard
// conditions, services, clients, and status events, and performs one
// blocking multiplexed wait per call.
//
// A WaitSet enforces a strict single-waiter contract: only one goroutine
// may be inside Wait at a time, and a concurrent Wait fails immediately
// with ErrConcurrentWait instead of queueing. Entities may be created,
// closed, or re-attached by other goroutines between calls; closing an
// entity that a WaitSet is currently blocked on is a reported usage error.
type WaitSet struct {
	stateMu   sync.Mutex
	stateCond *sync.Cond
	state     waitSetState

	// notify wakes the blocked multiplexed wait when any attached
	// condition becomes active.
	notify *syncx.Notifier

	// listMu guards the attachment lists against is-attached scans from
	// invalidating goroutines. The lists are only mutated by the goroutine
	// holding the wait set outside the free state.
	listMu              sync.Mutex
	attachedSubscribers []*Subscriber
	attachedGuards      []*GuardCondition
	attachedClients     []*Client
	attachedServices    []*Service
	attachedEvents      []*Event
	// eventsCache holds shallow copies of attached events so they remain
	// inspectable even if the caller dropped the originals.
	eventsCache map[*Event]Event

	active []*condition

	log *slog.Logger
}

// NewWaitSet creates an empty wait set bound to this session.
func (s *Session) NewWaitSet() *WaitSet {
	ws := &WaitSet{
		notify:      syncx.NewNotifier(),
		eventsCache: make(map[*Event]Event),
		log:         s.log,
	}
	ws.stateCond = sync.NewCond(&ws.stateMu)
	return ws
}

func (ws *WaitSet) wake() { ws.notify.Signal() }

func (ws *WaitSet) setState(s waitSetState) {
	ws.stateMu.Lock()
	ws.state = s
	ws.stateMu.Unlock()
	ws.stateCond.Broadcast()
}

// Wait blocks until at least one of the entities in w is active, the
// timeout expires, or an error occurs. A zero timeout polls without
// blocking; a negative timeout (Forever) blocks indefinitely.
//
// Inactive entries in w are nulled in place. On a nil return at least one
// entry is non-nil. ErrTimeout is a normal outcome of polling loops, not a
// failure.
func (ws *WaitSet) Wait(w *Waitables, timeout time.Duration) error {
	if w == nil {
		w = &Waitables{}
	}
	if err := w.validate(); err != nil {
		return err
	}

	// Claim the wait set.
	ws.stateMu.Lock()
	taken := false
	switch ws.state {
	case stateFree:
		// available
	case stateInvalidating:
		// another goroutine is invalidating; wait for it to finish.
		ws.stateCond.Wait()
		taken = ws.state != stateFree
	default:
		taken = true
	}
	if taken {
		ws.stateMu.Unlock()
		return ErrConcurrentWait
	}
	ws.state = stateAcquiring
	ws.stateMu.Unlock()
	ws.stateCond.Broadcast()

	// On any failure after claiming, detach everything so the wait set is
	// always left clean, then transition back to free.
	clean := false
	defer func() {
		if !clean {
			ws.detachAll()
		}
		ws.setState(stateFree)
	}()

	if err := ws.attach(w); err != nil {
		return err
	}

	n := len(ws.attachedSubscribers) + len(ws.attachedGuards) +
		len(ws.attachedClients) + len(ws.attachedServices) + len(ws.attachedEvents)
	if cap(ws.active) < n {
		ws.active = make([]*condition, 0, n)
	}

	ws.setState(stateBlocked)
	active := ws.muxWait(timeout)

	ws.setState(stateReleasing)
	activeCount, err := ws.processWait(w, active)
	if err != nil {
		return err
	}
	clean = true

	// A wakeup can go stale when a concurrent take drains the entity
	// between the multiplexed wait returning and the scan. Report it as a
	// timeout so a nil return always carries at least one active entry.
	if activeCount == 0 {
		return ErrTimeout
	}
	return nil
}

// muxWait is the single blocking multiplexed wait: it re-collects the
// level-triggered active set on every wakeup until something is active or
// the timeout expires. Returns nil on timeout.
func (ws *WaitSet) muxWait(timeout time.Duration) []*condition {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		// Grab the ready channel before collecting so a signal racing the
		// collection is never lost.
		ready := ws.notify.Ready()

		active := ws.collectActive()
		if len(active) > 0 {
			return active
		}
		if timeout == 0 {
			return nil
		}

		select {
		case <-ready:
		case <-deadline:
			return nil
		}
	}
}

func (ws *WaitSet) collectActive() []*condition {
	act := ws.active[:0]
	for _, sub := range ws.attachedSubscribers {
		if sub.cond.activeNow() {
			act = append(act, &sub.cond.condition)
		}
	}
	for _, g := range ws.attachedGuards {
		if g.activeNow() {
			act = append(act, &g.condition)
		}
	}
	for _, c := range ws.attachedClients {
		if c.replySub.cond.activeNow() {
			act = append(act, &c.replySub.cond.condition)
		}
	}
	for _, svc := range ws.attachedServices {
		if svc.requestSub.cond.activeNow() {
			act = append(act, &svc.requestSub.cond.condition)
		}
	}
	for _, e := range ws.attachedEvents {
		cached := ws.eventsCache[e]
		if cached.cond.activeNow() {
			act = append(act, &cached.cond.condition)
		}
	}
	ws.active = act
	return act
}

// activeCondition reports whether cond is among the multiplexed wait's
// active results.
func (ws *WaitSet) activeCondition(active []*condition, cond *condition) bool {
	for _, c := range active {
		if c == cond {
			return true
		}
	}
	return false
}

// processWait scans every attached entity, nulling inactive entries in the
// caller's slices in place, and reports how many are active. If any
// attached condition was concurrently marked deleted the scan still
// completes, but the call fails so the wait set never holds references to
// deleted conditions.
func (ws *WaitSet) processWait(w *Waitables, active []*condition) (int, error) {
	valid := true
	n := 0

	for i, sub := range ws.attachedSubscribers {
		// Check the subscriber's loan window, pulling from the transport
		// if it is empty.
		if !sub.hasData() {
			w.Subscribers[i] = nil
		} else {
			n++
		}
		valid = valid && !sub.cond.isDeleted()
	}

	for i, g := range ws.attachedGuards {
		if !ws.activeCondition(active, &g.condition) {
			w.Guards[i] = nil
		} else {
			// Reset the edge now that it was observed. This races with a
			// concurrent Trigger, which may be overwritten and lost; the
			// trigger contract is wake-then-inspect, so callers re-check
			// their own state after waking and the race is accepted.
			g.resetTrigger()
			n++
		}
		valid = valid && !g.isDeleted()
	}

	for i, c := range ws.attachedClients {
		if !c.replySub.hasData() {
			w.Clients[i] = nil
		} else {
			n++
		}
		valid = valid && !c.replySub.cond.isDeleted()
	}

	for i, svc := range ws.attachedServices {
		if !svc.requestSub.hasData() {
			w.Services[i] = nil
		} else {
			n++
		}
		valid = valid && !svc.requestSub.cond.isDeleted()
	}

	for i, e := range ws.attachedEvents {
		cached := ws.eventsCache[e]
		if !cached.cond.takeStatus(cached.Kind) {
			w.Events[i] = nil
		} else {
			n++
		}
		valid = valid && !cached.cond.isDeleted()
	}

	if !valid {
		return n, ErrConditionDeleted
	}
	return n, nil
}

// requireAttach reports whether the requested entities differ from the
// currently attached ones (by identity and count), in which case the
// attachment lists must be rebuilt. Skipping re-attachment when nothing
// changed keeps repeated polling on a stable set cheap.
func requireAttach[T comparable](attached, requested []T) bool {
	if len(requested) == 0 {
		return len(attached) > 0
	}
	if len(requested) != len(attached) {
		return true
	}
	for i := range requested {
		if requested[i] != attached[i] {
			return true
		}
	}
	return false
}

// stealCondition forces any other wait set currently holding cond to
// release it. Fails if that wait set is blocked on the condition right now.
func (ws *WaitSet) stealCondition(cond *condition) error {
	other := cond.attachedWaitSet()
	if other == nil || other == ws {
		return nil
	}
	if err := other.invalidate(cond); err != nil {
		return fmt.Errorf("release condition held by another wait set: %w", err)
	}
	ws.log.Debug("condition released from another wait set")
	return nil
}

// attachStatusCondition claims a subscriber-side condition for this wait
// set: reset its status mask, enable data availability, record the
// relation.
func (ws *WaitSet) attachStatusCondition(cond *statusCondition) error {
	if err := ws.stealCondition(&cond.condition); err != nil {
		return err
	}

	cond.mu.Lock()
	defer cond.mu.Unlock()
	if cond.deleted {
		return ErrConditionDeleted
	}
	cond.resetStatusesLocked()
	cond.enableStatusesLocked(StatusDataAvailable)
	return cond.attachLocked(ws)
}

// attach rebuilds the attachment lists from w, unless they are unchanged
// since the previous call.
func (ws *WaitSet) attach(w *Waitables) error {
	refresh := requireAttach(ws.attachedSubscribers, w.Subscribers) ||
		requireAttach(ws.attachedGuards, w.Guards) ||
		requireAttach(ws.attachedClients, w.Clients) ||
		requireAttach(ws.attachedServices, w.Services) ||
		requireAttach(ws.attachedEvents, w.Events)
	if !refresh {
		// Even when the set is unchanged, a kept condition may have been
		// concurrently flagged deleted by an invalidating goroutine that is
		// now blocked waiting for this wait to detach it.
		return ws.validateAttached()
	}

	ws.detachAll()

	// Reset the enabled statuses of every event's condition first, so an
	// entity waited on both for data and for an event ends up with exactly
	// the union of the two masks enabled.
	for _, e := range w.Events {
		if err := ws.stealCondition(&e.cond.condition); err != nil {
			return err
		}
		e.cond.mu.Lock()
		if e.cond.deleted {
			e.cond.mu.Unlock()
			return ErrConditionDeleted
		}
		e.cond.resetStatusesLocked()
		e.cond.mu.Unlock()
	}

	for _, sub := range w.Subscribers {
		if err := ws.attachStatusCondition(sub.cond); err != nil {
			return fmt.Errorf("attach subscriber condition: %w", err)
		}
		ws.appendAttached(func() { ws.attachedSubscribers = append(ws.attachedSubscribers, sub) })
	}

	for _, c := range w.Clients {
		if err := ws.attachStatusCondition(c.replySub.cond); err != nil {
			return fmt.Errorf("attach client condition: %w", err)
		}
		ws.appendAttached(func() { ws.attachedClients = append(ws.attachedClients, c) })
	}

	for _, svc := range w.Services {
		if err := ws.attachStatusCondition(svc.requestSub.cond); err != nil {
			return fmt.Errorf("attach service condition: %w", err)
		}
		ws.appendAttached(func() { ws.attachedServices = append(ws.attachedServices, svc) })
	}

	for _, e := range w.Events {
		e.cond.mu.Lock()
		if e.cond.deleted {
			e.cond.mu.Unlock()
			return ErrConditionDeleted
		}
		e.cond.enableStatusesLocked(e.Kind)
		if err := e.cond.attachLocked(ws); err != nil {
			e.cond.mu.Unlock()
			return fmt.Errorf("attach event condition: %w", err)
		}
		e.cond.mu.Unlock()
		// Cache a shallow copy so the event remains inspectable during
		// detach even if the caller has dropped it by then.
		ws.appendAttached(func() {
			ws.attachedEvents = append(ws.attachedEvents, e)
			ws.eventsCache[e] = *e
		})
	}

	for _, g := range w.Guards {
		if err := ws.stealCondition(&g.condition); err != nil {
			return err
		}
		g.mu.Lock()
		if g.deleted {
			g.mu.Unlock()
			return ErrConditionDeleted
		}
		if err := g.attachLocked(ws); err != nil {
			g.mu.Unlock()
			return fmt.Errorf("attach guard condition: %w", err)
		}
		g.mu.Unlock()
		ws.appendAttached(func() { ws.attachedGuards = append(ws.attachedGuards, g) })
	}

	return nil
}

func (ws *WaitSet) appendAttached(fn func()) {
	ws.listMu.Lock()
	fn()
	ws.listMu.Unlock()
}

// detachAll releases every attached condition and clears the attachment
// lists. Best-effort: it never stops halfway.
func (ws *WaitSet) detachAll() {
	ws.listMu.Lock()
	defer ws.listMu.Unlock()

	for _, sub := range ws.attachedSubscribers {
		sub.cond.mu.Lock()
		sub.cond.detachLocked()
		sub.cond.mu.Unlock()
	}
	ws.attachedSubscribers = ws.attachedSubscribers[:0]

	for _, g := range ws.attachedGuards {
		g.mu.Lock()
		g.detachLocked()
		g.mu.Unlock()
	}
	ws.attachedGuards = ws.attachedGuards[:0]

	for _, c := range ws.attachedClients {
		c.replySub.cond.mu.Lock()
		c.replySub.cond.detachLocked()
		c.replySub.cond.mu.Unlock()
	}
	ws.attachedClients = ws.attachedClients[:0]

	for _, svc := range ws.attachedServices {
		svc.requestSub.cond.mu.Lock()
		svc.requestSub.cond.detachLocked()
		svc.requestSub.cond.mu.Unlock()
	}
	ws.attachedServices = ws.attachedServices[:0]

	for _, e := range ws.attachedEvents {
		cached := ws.eventsCache[e]
		cached.cond.mu.Lock()
		cached.cond.detachLocked()
		cached.cond.mu.Unlock()
	}
	ws.attachedEvents = ws.attachedEvents[:0]
	clear(ws.eventsCache)
}

// validateAttached fails if any attached condition was flagged deleted.
func (ws *WaitSet) validateAttached() error {
	ws.listMu.Lock()
	defer ws.listMu.Unlock()

	ok := true
	for _, sub := range ws.attachedSubscribers {
		ok = ok && !sub.cond.isDeleted()
	}
	for _, g := range ws.attachedGuards {
		ok = ok && !g.isDeleted()
	}
	for _, c := range ws.attachedClients {
		ok = ok && !c.replySub.cond.isDeleted()
	}
	for _, svc := range ws.attachedServices {
		ok = ok && !svc.requestSub.cond.isDeleted()
	}
	for _, e := range ws.attachedEvents {
		cached := ws.eventsCache[e]
		ok = ok && !cached.cond.isDeleted()
	}
	if !ok {
		return ErrConditionDeleted
	}
	return nil
}

// isAttached reports whether cond is referenced by any attachment list.
func (ws *WaitSet) isAttached(cond *condition) bool {
	ws.listMu.Lock()
	defer ws.listMu.Unlock()

	for _, sub := range ws.attachedSubscribers {
		if &sub.cond.condition == cond {
			return true
		}
	}
	for _, g := range ws.attachedGuards {
		if &g.condition == cond {
			return true
		}
	}
	for _, c := range ws.attachedClients {
		if &c.replySub.cond.condition == cond {
			return true
		}
	}
	for _, svc := range ws.attachedServices {
		if &svc.requestSub.cond.condition == cond {
			return true
		}
	}
	for _, e := range ws.attachedEvents {
		cached := ws.eventsCache[e]
		if &cached.cond.condition == cond {
			return true
		}
	}
	return false
}

// invalidate guarantees that cond is no longer referenced by this wait set
// before returning. Called from any goroutine when the entity owning cond
// is being destroyed or re-attached elsewhere.
func (ws *WaitSet) invalidate(cond *condition) error {
	ws.stateMu.Lock()

	// Nothing to do if the condition is not attached: the wait set holds
	// no stale reference.
	if !ws.isAttached(cond) {
		ws.stateMu.Unlock()
		return nil
	}

	// If the wait set is free, claim it for invalidation, clean up, and
	// release it. A concurrent Wait observes the invalidating state and
	// blocks until notified.
	if ws.state == stateFree {
		ws.state = stateInvalidating
		ws.stateMu.Unlock()

		ws.detachAll()

		ws.stateMu.Lock()
		ws.state = stateFree
		ws.stateMu.Unlock()
		ws.stateCond.Broadcast()
		return nil
	}

	// The wait set is inside a Wait call. Unless the waiting goroutine is
	// still acquiring (in which case it observes the deleted flag and
	// detaches on its own), the caller is trying to delete an entity while
	// simultaneously waiting on it.
	if ws.state != stateAcquiring {
		ws.stateMu.Unlock()
		return ErrDeleteWhileWaiting
	}

	// Safe window: wait out state transitions until the acquiring
	// goroutine has released the condition. If it reaches the blocked
	// state still holding it, the deleted flag was set too late to be
	// observed and this is the delete-while-waiting case after all.
	defer ws.stateMu.Unlock()
	for {
		ws.stateCond.Wait()
		if !ws.isAttached(cond) {
			return nil
		}
		if ws.state != stateAcquiring {
			return ErrDeleteWhileWaiting
		}
	}
}
