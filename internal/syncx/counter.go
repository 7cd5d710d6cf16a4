package syncx

import "sync/atomic"

// Counter is a monotonically increasing sequence counter safe for
// concurrent use.
type Counter struct {
	value int64
}

// Inc increments the counter by 1 and returns the new value.
func (c *Counter) Inc() int64 {
	return atomic.AddInt64(&c.value, 1)
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return atomic.LoadInt64(&c.value)
}
