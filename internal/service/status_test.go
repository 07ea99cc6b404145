package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSyncStatusTransitions(t *testing.T) {
	t.Parallel()
	s := NewSyncStatus(time.Minute)

	state, err := s.State()
	require.Equal(t, SyncIdle, state)
	require.NoError(t, err)

	require.True(t, s.Begin())
	state, _ = s.State()
	require.Equal(t, SyncSyncing, state)

	// overlapping triggers collapse into the running session
	require.False(t, s.Begin())

	s.Complete()
	state, err = s.State()
	require.Equal(t, SyncCompleted, state)
	require.NoError(t, err)
}

func TestSyncStatusFailureCarriesCause(t *testing.T) {
	t.Parallel()
	s := NewSyncStatus(time.Minute)
	cause := errors.New("remote unreachable")

	require.True(t, s.Begin())
	s.Fail(cause)

	state, err := s.State()
	require.Equal(t, SyncError, state)
	require.ErrorIs(t, err, cause)
}

func TestSyncStatusRevertsToIdle(t *testing.T) {
	t.Parallel()
	s := NewSyncStatus(20 * time.Millisecond)

	require.True(t, s.Begin())
	s.Complete()

	require.Eventually(t, func() bool {
		state, _ := s.State()
		return state == SyncIdle
	}, time.Second, 5*time.Millisecond)
}

func TestSyncStatusNewSessionCancelsPendingRevert(t *testing.T) {
	t.Parallel()
	s := NewSyncStatus(30 * time.Millisecond)

	require.True(t, s.Begin())
	s.Complete()

	// start again before the revert fires; the stale timer must not yank the
	// new session back to Idle
	require.True(t, s.Begin())
	time.Sleep(60 * time.Millisecond)

	state, _ := s.State()
	require.Equal(t, SyncSyncing, state)
}

func TestSyncStatusSubscribeSeesChanges(t *testing.T) {
	t.Parallel()
	s := NewSyncStatus(time.Minute)
	ch := s.Subscribe()

	require.True(t, s.Begin())
	s.Complete()

	require.Equal(t, SyncSyncing, <-ch)
	require.Equal(t, SyncCompleted, <-ch)
}
