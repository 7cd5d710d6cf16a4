package waitset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitNothingAttachedTimesOut(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()

	err := ws.Wait(&Waitables{}, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitNilEntryRejected(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()

	err := ws.Wait(&Waitables{Guards: []*GuardCondition{nil}}, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWaitTimeoutNullsInactive(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()
	g := s.NewGuardCondition()

	w := &Waitables{Guards: []*GuardCondition{g}}
	err := ws.Wait(w, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Nil(t, w.Guards[0], "inactive guard must be nulled in place")
}

func TestWaitPoll(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()
	g := s.NewGuardCondition()

	// Zero timeout polls: nothing active yet.
	w := &Waitables{Guards: []*GuardCondition{g}}
	require.ErrorIs(t, ws.Wait(w, 0), ErrTimeout)

	require.NoError(t, g.Trigger())
	w = &Waitables{Guards: []*GuardCondition{g}}
	require.NoError(t, ws.Wait(w, 0))
	assert.Same(t, g, w.Guards[0])
}

func TestWaitWokenByGuardTrigger(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()
	g := s.NewGuardCondition()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = g.Trigger()
	}()

	w := &Waitables{Guards: []*GuardCondition{g}}
	require.NoError(t, ws.Wait(w, Forever))
	require.Same(t, g, w.Guards[0])

	// The trigger edge was consumed by the wait.
	assert.False(t, g.activeNow())
	w = &Waitables{Guards: []*GuardCondition{g}}
	assert.ErrorIs(t, ws.Wait(w, 0), ErrTimeout)
}

func TestWaitConcurrentRejected(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()
	g := s.NewGuardCondition()

	done := make(chan error, 1)
	go func() {
		done <- ws.Wait(&Waitables{Guards: []*GuardCondition{g}}, Forever)
	}()
	waitState(t, ws, stateBlocked)

	err := ws.Wait(&Waitables{Guards: []*GuardCondition{g}}, 0)
	assert.ErrorIs(t, err, ErrConcurrentWait)

	require.NoError(t, g.Trigger())
	require.NoError(t, <-done)
}

func TestWaitRepeatedWithSameSet(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()
	g := s.NewGuardCondition()

	// Waiting repeatedly on an unchanged set reuses the attachment.
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Trigger())
		w := &Waitables{Guards: []*GuardCondition{g}}
		require.NoError(t, ws.Wait(w, time.Second), "round %d", i)
		require.Same(t, g, w.Guards[0], "round %d", i)
	}
}

func TestCloseGuardWhileBlockedOnIt(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()
	g := s.NewGuardCondition()

	done := make(chan error, 1)
	go func() {
		done <- ws.Wait(&Waitables{Guards: []*GuardCondition{g}}, Forever)
	}()
	waitState(t, ws, stateBlocked)

	require.ErrorIs(t, g.Close(), ErrDeleteWhileWaiting)

	require.NoError(t, g.Trigger())
	require.NoError(t, <-done)

	// Once the wait set is idle the guard can go.
	require.NoError(t, g.Close())
}

func TestWaitStealsConditionFromIdleWaitSet(t *testing.T) {
	s := createTestSession(t)
	ws1 := s.NewWaitSet()
	ws2 := s.NewWaitSet()
	g := s.NewGuardCondition()

	// A poll leaves the guard attached to ws1.
	require.ErrorIs(t, ws1.Wait(&Waitables{Guards: []*GuardCondition{g}}, 0), ErrTimeout)
	require.Same(t, ws1, g.attachedWaitSet())

	// ws2 force-releases the stale relation and takes over.
	require.NoError(t, g.Trigger())
	w := &Waitables{Guards: []*GuardCondition{g}}
	require.NoError(t, ws2.Wait(w, time.Second))
	require.Same(t, g, w.Guards[0])
	assert.Same(t, ws2, g.attachedWaitSet())
	assert.False(t, ws1.isAttached(&g.condition))
}

func TestWaitDetachesOnShrunkSet(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()
	g1 := s.NewGuardCondition()
	g2 := s.NewGuardCondition()

	require.ErrorIs(t, ws.Wait(&Waitables{Guards: []*GuardCondition{g1, g2}}, 0), ErrTimeout)
	require.Same(t, ws, g2.attachedWaitSet())

	// Waiting on a smaller set releases what is no longer requested.
	require.NoError(t, g1.Trigger())
	require.NoError(t, ws.Wait(&Waitables{Guards: []*GuardCondition{g1}}, time.Second))
	assert.Nil(t, g2.attachedWaitSet())
}

func TestWaitOnClosedGuardFails(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()
	g := s.NewGuardCondition()
	require.NoError(t, g.Close())

	err := ws.Wait(&Waitables{Guards: []*GuardCondition{g}}, 0)
	assert.ErrorIs(t, err, ErrConditionDeleted)
}

func TestWaitDetectsDeletionOfKeptCondition(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()
	g := s.NewGuardCondition()

	require.ErrorIs(t, ws.Wait(&Waitables{Guards: []*GuardCondition{g}}, 0), ErrTimeout)
	require.Same(t, ws, g.attachedWaitSet())

	// The set is unchanged, so the next wait would normally reuse the
	// attachment; a deleted flag set in the meantime must still fail it.
	g.setDeleted(true)
	err := ws.Wait(&Waitables{Guards: []*GuardCondition{g}}, 0)
	assert.ErrorIs(t, err, ErrConditionDeleted)
	assert.Nil(t, g.attachedWaitSet(), "failed wait leaves nothing attached")
}

func TestWaitStaleReadinessReportsTimeout(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()

	sub, err := s.NewSubscriber("test.stale.readiness")
	require.NoError(t, err)

	// Readiness raised with nothing to take, as when a concurrent take
	// drains the subscriber between the wakeup and the scan.
	sub.cond.setDataAvailable(true)

	w := &Waitables{Subscribers: []*Subscriber{sub}}
	err = ws.Wait(w, time.Second)
	assert.ErrorIs(t, err, ErrTimeout, "stale wakeup must not report success")
	assert.Nil(t, w.Subscribers[0])
}

func TestInvalidateWaitsOutAcquiringWindow(t *testing.T) {
	s := createTestSession(t)
	ws := s.NewWaitSet()
	g := s.NewGuardCondition()

	// A poll leaves the guard attached with the wait set free again.
	require.ErrorIs(t, ws.Wait(&Waitables{Guards: []*GuardCondition{g}}, 0), ErrTimeout)
	require.Same(t, ws, g.attachedWaitSet())

	// Park the wait set mid-acquire, as another goroutine entering Wait
	// would, so invalidate must hold off until the guard is released.
	ws.stateMu.Lock()
	ws.state = stateAcquiring
	ws.stateMu.Unlock()

	done := make(chan error, 1)
	go func() { done <- ws.invalidate(&g.condition) }()

	select {
	case err := <-done:
		t.Fatalf("invalidate returned %v while the guard was still attached", err)
	case <-time.After(50 * time.Millisecond):
	}

	// The acquiring goroutine detaches and frees the wait set; only then
	// may invalidate return.
	ws.detachAll()
	ws.setState(stateFree)

	require.NoError(t, <-done)
	assert.Nil(t, g.attachedWaitSet())
}

func TestWaitSetStateString(t *testing.T) {
	assert.Equal(t, "free", stateFree.String())
	assert.Equal(t, "acquiring", stateAcquiring.String())
	assert.Equal(t, "blocked", stateBlocked.String())
	assert.Equal(t, "releasing", stateReleasing.String())
	assert.Equal(t, "invalidating", stateInvalidating.String())
}
