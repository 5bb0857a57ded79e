package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/cashflow-engine/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.AnalyzePlanJob {
	t.Helper()
	var last *jobs.AnalyzePlanJob
	require.Eventually(t, func() bool {
		job, err := store.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		last = job
		return job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func TestQueue_PublishFillsDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)
	defer q.Close()

	job := &jobs.AnalyzePlanJob{PlanURI: "plan.json"}
	require.NoError(t, q.PublishAnalyzePlan(context.Background(), job))

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, 3, job.MaxRetries)

	saved, err := store.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, "plan.json", saved.PlanURI)
}

func TestQueue_ProcessesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithWorkers(2))

	var handled atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		assert.Equal(t, jobs.JobTypeAnalyzePlan, job.GetType())
		assert.Equal(t, jobs.JobStatusRunning, job.GetStatus())
		handled.Add(1)
		return nil
	}))

	job := &jobs.AnalyzePlanJob{JobID: "job-1"}
	require.NoError(t, q.PublishAnalyzePlan(ctx, job))

	got := waitForStatus(t, store, "job-1", jobs.JobStatusCompleted)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)
	assert.Equal(t, int32(1), handled.Load())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithWorkers(1), WithBackoff(time.Millisecond))

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.PublishAnalyzePlan(ctx, &jobs.AnalyzePlanJob{JobID: "flaky"}))

	got := waitForStatus(t, store, "flaky", jobs.JobStatusCompleted)
	assert.Equal(t, 2, got.RetryCount)
	assert.Empty(t, got.Error)
	assert.Equal(t, int32(3), attempts.Load())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithWorkers(1), WithBackoff(time.Millisecond))

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return errors.New("plan not found")
	}))

	require.NoError(t, q.PublishAnalyzePlan(ctx, &jobs.AnalyzePlanJob{JobID: "broken", MaxRetries: 1}))

	got := waitForStatus(t, store, "broken", jobs.JobStatusFailed)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "plan not found", got.Error)
	assert.Equal(t, int32(2), attempts.Load())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(1, NewStore())
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()), "stopping twice is a no-op")

	err := q.PublishAnalyzePlan(context.Background(), &jobs.AnalyzePlanJob{})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)

	err = q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil })
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
}

func TestQueue_PublishRespectsContext(t *testing.T) {
	q := NewQueue(0, nil)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.PublishAnalyzePlan(ctx, &jobs.AnalyzePlanJob{})
	assert.ErrorIs(t, err, context.Canceled)
}
