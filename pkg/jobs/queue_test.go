package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobs(t *testing.T) {
	done := make(chan Job, 2)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job
		return nil
	}, QueueConfig{Workers: 2})

	require.Error(t, q.Enqueue(Job{ID: "early"}), "queue must be started first")

	q.Start(context.Background())
	defer q.Stop()
	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "STANDARD"}))

	select {
	case job := <-done:
		assert.Equal(t, "job-1", job.ID)
		assert.False(t, job.Enqueued.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestQueueDoesNotRetryCancelledJobs(t *testing.T) {
	var attempts int32
	started := make(chan struct{})
	q := NewQueue("cancel", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		close(started)
		<-ctx.Done()
		return ErrJobCancelled
	}, QueueConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	assert.False(t, q.Cancel("job-1"), "not running yet")
	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))
	<-started
	require.Eventually(t, func() bool { return q.Cancel("job-1") }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !q.Cancel("job-1") }, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestQueueJobTimeout(t *testing.T) {
	deadline := make(chan bool, 1)
	q := NewQueue("timeout", func(ctx context.Context, job Job) error {
		_, ok := ctx.Deadline()
		deadline <- ok
		return nil
	}, QueueConfig{JobTimeout: time.Minute})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))
	select {
	case ok := <-deadline:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueStopRejectsNewJobs(t *testing.T) {
	q := NewQueue("stop", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	q.Start(context.Background())
	q.Stop()
	q.Stop()
	assert.Error(t, q.Enqueue(Job{ID: "late"}))
}
