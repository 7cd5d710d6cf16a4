package waitset

import (
	"sync"
	"sync/atomic"
)

// Status identifies the kinds of status change an entity's condition can
// report. Values combine as a bitmask.
type Status uint32

const (
	// StatusDataAvailable is raised while a subscriber has undelivered
	// samples buffered or retrievable.
	StatusDataAvailable Status = 1 << iota
	// StatusSamplesLost is raised when a subscriber's arrival buffer
	// overflowed and samples were dropped.
	StatusSamplesLost
	// StatusError is raised when the entity hit a transport-level failure.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDataAvailable:
		return "data-available"
	case StatusSamplesLost:
		return "samples-lost"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// condition is the attachable event source backing an entity's readiness
// notification. A condition belongs to its entity; a WaitSet only records a
// relation to it, and at most one WaitSet holds that relation at any
// instant.
type condition struct {
	mu      sync.Mutex
	deleted bool
	ws      *WaitSet
}

// attachLocked records the relation to ws. The caller holds c.mu.
// Attaching while a different WaitSet still holds the relation is refused;
// the caller is expected to have invalidated that relation first.
func (c *condition) attachLocked(ws *WaitSet) error {
	if c.ws != nil && c.ws != ws {
		return errAlreadyAttached
	}
	c.ws = ws
	return nil
}

// detachLocked clears the relation. Idempotent. The caller holds c.mu.
func (c *condition) detachLocked() { c.ws = nil }

func (c *condition) attachedWaitSet() *WaitSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws
}

func (c *condition) setDeleted(on bool) {
	c.mu.Lock()
	c.deleted = on
	c.mu.Unlock()
}

func (c *condition) isDeleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleted
}

// invalidate guarantees that after it returns the condition is not
// referenced by any WaitSet. Called by the owning entity on destruction,
// possibly from a different goroutine than the one waiting.
func (c *condition) invalidate() error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	return ws.invalidate(c)
}

// wake signals the WaitSet currently blocked on this condition, if any.
func (c *condition) wake() {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		ws.wake()
	}
}

// statusCondition is the condition variant bound to one transport entity
// (subscriber or publisher). It tracks which status kinds count as active,
// the set currently raised, and a cached data-available flag maintained by
// the loan pipeline.
type statusCondition struct {
	condition

	// enabled and raised are guarded by condition.mu.
	enabled Status
	raised  Status

	dataAvail atomic.Bool

	// pending probes the depth of the entity's arrival buffer; nil for
	// entities without one (publishers).
	pending func() int
}

// resetStatusesLocked clears the enabled mask and any raised flags.
// The caller holds c.mu.
func (c *statusCondition) resetStatusesLocked() {
	c.enabled = 0
	c.raised = 0
}

// enableStatusesLocked adds mask to the statuses counting as active.
// The caller holds c.mu.
func (c *statusCondition) enableStatusesLocked(mask Status) {
	c.enabled |= mask
}

// setDataAvailable caches whether the entity has undelivered samples and
// wakes any blocked wait when data appears.
func (c *statusCondition) setDataAvailable(on bool) {
	c.dataAvail.Store(on)
	if on {
		c.wake()
	}
}

// raise marks kind as currently set and wakes any blocked wait for which it
// is enabled.
func (c *statusCondition) raise(kind Status) {
	c.mu.Lock()
	c.raised |= kind
	enabled := c.enabled&kind != 0
	ws := c.ws
	c.mu.Unlock()
	if enabled && ws != nil {
		ws.wake()
	}
}

// takeStatus reports whether kind is currently raised and clears it, so a
// status event is observed at most once per occurrence.
func (c *statusCondition) takeStatus(kind Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	on := c.raised&kind != 0
	c.raised &^= kind
	return on
}

// activeNow reports whether the condition would trigger a multiplexed wait
// right now. Level-triggered: re-evaluated on every wakeup.
func (c *statusCondition) activeNow() bool {
	c.mu.Lock()
	enabled := c.enabled
	raised := c.raised
	c.mu.Unlock()

	if enabled&StatusDataAvailable != 0 {
		if c.dataAvail.Load() {
			return true
		}
		if c.pending != nil && c.pending() > 0 {
			return true
		}
	}
	return enabled&raised != 0
}

func newStatusCondition() *statusCondition { return &statusCondition{} }
