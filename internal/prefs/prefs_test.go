package prefs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenDefaults(t *testing.T) {
	t.Parallel()
	p, err := Open(t.TempDir())
	require.NoError(t, err)

	require.False(t, p.SyncEnabled())
	require.True(t, p.AutoCategorize())
	require.False(t, p.ExcludeFromWeekly())
}

func TestTogglesPersistAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	p, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, p.SetSyncEnabled(true))
	require.NoError(t, p.SetAutoCategorize(false))
	require.NoError(t, p.SetExcludeFromWeekly(true))

	reopened, err := Open(dir)
	require.NoError(t, err)
	require.True(t, reopened.SyncEnabled())
	require.False(t, reopened.AutoCategorize())
	require.True(t, reopened.ExcludeFromWeekly())
}
