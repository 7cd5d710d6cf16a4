package waitset

import "sync/atomic"

// GuardCondition is a user-triggerable condition: a cross-goroutine wake
// signal with no payload. Trigger it from any goroutine to wake a WaitSet
// blocked on it; the edge is cleared when a Wait observes it.
type GuardCondition struct {
	condition

	session   *Session
	triggered atomic.Bool
	closed    atomic.Bool
}

// NewGuardCondition creates a guard condition owned by this session.
func (s *Session) NewGuardCondition() *GuardCondition {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()
	return &GuardCondition{session: s}
}

// Trigger sets the guard's edge flag and wakes any blocked wait.
func (g *GuardCondition) Trigger() error {
	if g.closed.Load() {
		return ErrClosed
	}
	g.triggered.Store(true)
	g.wake()
	return nil
}

// resetTrigger clears the edge after observation.
func (g *GuardCondition) resetTrigger() { g.triggered.Store(false) }

func (g *GuardCondition) activeNow() bool { return g.triggered.Load() }

// Close releases the guard condition from any WaitSet it is attached to.
// Closing a guard that a WaitSet is currently blocked on fails with
// ErrDeleteWhileWaiting.
func (g *GuardCondition) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	g.session.updateMu.Lock()
	defer g.session.updateMu.Unlock()

	// Deleted is flagged before invalidation so an acquiring wait observes
	// it and detaches on its own.
	g.setDeleted(true)
	if err := g.invalidate(); err != nil {
		g.setDeleted(false)
		g.closed.Store(false)
		return err
	}
	return nil
}
