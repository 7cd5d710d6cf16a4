package waitset

import "errors"

var (
	// ErrClosed indicates the session or entity was already closed.
	ErrClosed = errors.New("already closed")
	// ErrUnhealthy indicates the session is not ready/connected.
	ErrUnhealthy = errors.New("session is not healthy")
	// ErrTimeout indicates a blocking wait expired with nothing active.
	ErrTimeout = errors.New("wait timed out")
	// ErrInvalidArgument indicates a malformed call, e.g. mismatched buffer
	// capacities.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConcurrentWait indicates a second Wait was attempted while the
	// wait set was held by another goroutine.
	ErrConcurrentWait = errors.New("multiple concurrent waits not supported")
	// ErrDeleteWhileWaiting indicates an entity was closed while a wait set
	// was blocked on it.
	ErrDeleteWhileWaiting = errors.New("cannot delete and wait on the same object")
	// ErrConditionDeleted indicates a wait completed but one of the attached
	// conditions was concurrently deleted.
	ErrConditionDeleted = errors.New("condition deleted while attached")
)

// errAlreadyAttached guards the single-relation invariant; it can only
// surface if a concurrent wait set failed to release a condition first.
var errAlreadyAttached = errors.New("condition attached to another wait set")

// multiErr is a simple error accumulator for best-effort cleanup paths.
type multiErr []error

func (m *multiErr) add(err error) { *m = append(*m, err) }

func (m multiErr) Error() string {
	if len(m) == 0 {
		return ""
	}
	if len(m) == 1 {
		return m[0].Error()
	}
	msg := "multiple errors:"
	for _, e := range m {
		msg += "\n - " + e.Error()
	}
	return msg
}

// err returns the accumulated errors, or nil if none were recorded.
func (m multiErr) err() error {
	if len(m) == 0 {
		return nil
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}
