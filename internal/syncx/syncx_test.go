package syncx

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierWakesPendingWaiter(t *testing.T) {
	n := NewNotifier()
	ready := n.Ready()

	go n.Signal()

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken")
	}
}

func TestNotifierNoMissedWakeup(t *testing.T) {
	n := NewNotifier()

	// A channel grabbed before the signal observes the signal even if the
	// waiter only blocks afterwards.
	ready := n.Ready()
	n.Signal()

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("signal issued after the grab was lost")
	}
}

func TestNotifierRearms(t *testing.T) {
	n := NewNotifier()
	n.Signal()

	// A fresh Ready channel is not already closed.
	select {
	case <-n.Ready():
		t.Fatal("notifier did not re-arm after signal")
	default:
	}
}

func TestNotifierBroadcast(t *testing.T) {
	n := NewNotifier()
	ready := n.Ready()

	const waiters = 8
	var wg sync.WaitGroup
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg.Done()
			<-ready
		}()
	}

	n.Signal()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all waiters were woken by one signal")
	}
}

func TestCounter(t *testing.T) {
	var c Counter
	assert.EqualValues(t, 0, c.Load())
	assert.EqualValues(t, 1, c.Inc())
	assert.EqualValues(t, 2, c.Inc())
	assert.EqualValues(t, 2, c.Load())
}

func TestCounterConcurrent(t *testing.T) {
	var c Counter
	const goroutines, perG = 8, 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, goroutines*perG, c.Load())
}
