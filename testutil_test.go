package waitset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// createTestSession boots a session on a dynamic port and registers cleanup.
func createTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	defaultOpts := []Option{
		WithRandomPort(),
		WithServerReadyTimeout(5 * time.Second),
	}
	s, err := New(ctx, append(defaultOpts, opts...)...)
	require.NoError(t, err, "failed to create test session")

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Close(ctx); err != nil && err != ErrClosed {
			t.Logf("warning: error closing test session: %v", err)
		}
	})

	return s
}

// waitState blocks until the wait set reaches the given state.
func waitState(t *testing.T, ws *WaitSet, want waitSetState) {
	t.Helper()
	require.Eventually(t, func() bool {
		ws.stateMu.Lock()
		defer ws.stateMu.Unlock()
		return ws.state == want
	}, 5*time.Second, 5*time.Millisecond, "wait set never reached state %v", want)
}
