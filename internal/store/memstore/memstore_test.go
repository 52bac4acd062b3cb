package memstore_test

import (
	"context"
	"testing"

	afstore "github.com/aetherflow/aetherflow/internal/store"
	"github.com/aetherflow/aetherflow/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemstoreSatisfiesJobAndStepLifecycle(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	_, found, err := s.GetJobStatus(ctx, "j", "r")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetJobStatus(ctx, "j", "r", afstore.JobStatusSuccess))
	status, found, err := s.GetJobStatus(ctx, "j", "r")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, afstore.JobStatusSuccess, status)
}

func TestMemstoreLockMutualExclusion(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	ok, err := s.TryAcquireLock(ctx, "k", "owner-a", 600)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryAcquireLock(ctx, "k", "owner-b", 600)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, "k", "owner-a"))
	ok, err = s.TryAcquireLock(ctx, "k", "owner-b", 600)
	require.NoError(t, err)
	assert.True(t, ok)
}
