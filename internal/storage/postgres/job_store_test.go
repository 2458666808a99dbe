package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

func testJob(id string, notBefore time.Time) *domain.ConfirmationJob {
	return &domain.ConfirmationJob{
		ID:             id,
		TxID:           "sig-" + id,
		UserID:         7,
		ReferralCredit: 25,
		NotBefore:      notBefore.UTC().Truncate(time.Microsecond),
		State:          domain.JobScheduled,
		Policy:         domain.RetryPolicy{Delay: 2 * time.Second, Backoff: 500 * time.Millisecond, MaxAttempts: 10},
	}
}

// secondStore opens an independent pool on the same database, as another
// process would.
func secondStore(t *testing.T, pool *Pool) *JobStore {
	t.Helper()
	other, err := NewPool(context.Background(), pool.Config().ConnString())
	require.NoError(t, err)
	t.Cleanup(other.Close)
	return NewJobStore(other)
}

func TestJobStore_SharedAcrossPools(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	trade := NewJobStore(pool)
	confirmer := secondStore(t, pool)

	now := time.Now()
	require.NoError(t, trade.Save(ctx, testJob("job-b", now.Add(time.Minute))))
	require.NoError(t, trade.Save(ctx, testJob("job-a", now)))

	jobs, err := confirmer.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-a", jobs[0].ID, "ordered by not_before")

	got, err := confirmer.Get(ctx, "job-a")
	require.NoError(t, err)
	want := testJob("job-a", now)
	assert.Equal(t, want.TxID, got.TxID)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.ReferralCredit, got.ReferralCredit)
	assert.Equal(t, want.Policy, got.Policy)
	assert.Equal(t, domain.JobScheduled, got.State)
	assert.True(t, want.NotBefore.Equal(got.NotBefore))

	got.State = domain.JobRetryScheduled
	got.Attempts = 2
	require.NoError(t, confirmer.Save(ctx, got))

	back, err := trade.Get(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRetryScheduled, back.State)
	assert.Equal(t, 2, back.Attempts)

	require.NoError(t, trade.Delete(ctx, "job-a"))
	_, err = confirmer.Get(ctx, "job-a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, confirmer.Delete(ctx, "job-a"), "deleting a missing job")
}

func TestJobStore_ClaimIsExclusive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	first := NewJobStore(pool)
	second := secondStore(t, pool)

	job := testJob("job-1", time.Now())
	require.NoError(t, first.Save(ctx, job))

	ok, err := first.Claim(ctx, job.ID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Claim(ctx, job.ID, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lease is held by the first store")

	// Saving the running state keeps the lease.
	job.State = domain.JobRunning
	job.Attempts = 1
	require.NoError(t, first.Save(ctx, job))
	ok, err = second.Claim(ctx, job.ID, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Rescheduling releases it.
	job.State = domain.JobRetryScheduled
	require.NoError(t, first.Save(ctx, job))
	ok, err = second.Claim(ctx, job.ID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = first.Claim(ctx, "missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobStore_ClaimAfterLeaseExpires(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	first := NewJobStore(pool)
	second := secondStore(t, pool)

	require.NoError(t, first.Save(ctx, testJob("job-1", time.Now())))

	ok, err := first.Claim(ctx, "job-1", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		ok, err := second.Claim(ctx, "job-1", time.Minute)
		return err == nil && ok
	}, 5*time.Second, 20*time.Millisecond)
}
