package syncx

import "sync"

// Notifier is an edge-triggered broadcast signal.
//
// Waiters obtain a channel from Ready and block on it; Signal wakes all
// pending waiters at once and re-arms the notifier. Signals delivered while
// nobody is waiting coalesce: a waiter that grabs its Ready channel before
// checking state never misses a wakeup, because a Signal issued after the
// grab closes that same channel.
type Notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func NewNotifier() *Notifier { return &Notifier{ch: make(chan struct{})} }

// Signal wakes all pending waiters and re-arms the notifier.
func (n *Notifier) Signal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}

// Ready returns a channel that is closed by the next Signal.
func (n *Notifier) Ready() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}
