package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	afstore "github.com/aetherflow/aetherflow/internal/store"
	"github.com/aetherflow/aetherflow/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := sqlite.Open(sqlite.Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobStatusRoundTrip(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	_, found, err := s.GetJobStatus(ctx, "extract", "run-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetJobStatus(ctx, "extract", "run-1", afstore.JobStatusRunning))
	status, found, err := s.GetJobStatus(ctx, "extract", "run-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, afstore.JobStatusRunning, status)

	require.NoError(t, s.SetJobStatus(ctx, "extract", "run-1", afstore.JobStatusSuccess))
	status, found, err = s.GetJobStatus(ctx, "extract", "run-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, afstore.JobStatusSuccess, status)
}

func TestStepStatusAbsenceMeansNotYetExecuted(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	_, found, err := s.GetStepStatus(ctx, "extract", "run-1", "pull")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetStepStatus(ctx, "extract", "run-1", "pull", afstore.StepStatusSuccess))
	status, found, err := s.GetStepStatus(ctx, "extract", "run-1", "pull")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, afstore.StepStatusSuccess, status)
}

func TestSetStepStatusIdempotentOnSameValue(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	require.NoError(t, s.SetStepStatus(ctx, "j", "r", "s", afstore.StepStatusSuccess))
	require.NoError(t, s.SetStepStatus(ctx, "j", "r", "s", afstore.StepStatusSuccess))
	status, found, err := s.GetStepStatus(ctx, "j", "r", "s")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, afstore.StepStatusSuccess, status)
}

func TestTryAcquireLockSucceedsWhenAbsent(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	ok, err := s.TryAcquireLock(ctx, "warehouse", "run-1", 600)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryAcquireLockFailsForDifferentOwnerWhileHeld(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	ok, err := s.TryAcquireLock(ctx, "warehouse", "run-1", 600)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.TryAcquireLock(ctx, "warehouse", "run-2", 600)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTryAcquireLockSucceedsForSameOwnerReentrant(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	ok, err := s.TryAcquireLock(ctx, "warehouse", "run-1", 600)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.TryAcquireLock(ctx, "warehouse", "run-1", 600)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryAcquireLockSucceedsAfterExpiry(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	ok, err := s.TryAcquireLock(ctx, "warehouse", "run-1", -1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.TryAcquireLock(ctx, "warehouse", "run-2", 600)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseLockOnlyRemovesWhenOwnerMatches(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	_, err := s.TryAcquireLock(ctx, "warehouse", "run-1", 600)
	require.NoError(t, err)

	require.NoError(t, s.ReleaseLock(ctx, "warehouse", "run-2"))
	ok, err := s.TryAcquireLock(ctx, "warehouse", "run-2", 600)
	require.NoError(t, err)
	assert.False(t, ok, "release by non-owner must be a no-op")

	require.NoError(t, s.ReleaseLock(ctx, "warehouse", "run-1"))
	ok, err = s.TryAcquireLock(ctx, "warehouse", "run-2", 600)
	require.NoError(t, err)
	assert.True(t, ok)
}
