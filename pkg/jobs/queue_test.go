package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 4)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 4})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "b"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job was not processed")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "a"}))
}

func TestQueueFullBufferReturnsError(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	// first job occupies the worker, second fills the buffer
	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first job")
	}
	require.NoError(t, q.Enqueue(Job{ID: "b"}))

	// the third must come back immediately instead of blocking
	start := time.Now()
	err := q.Enqueue(Job{ID: "c"})
	require.ErrorIs(t, err, ErrQueueFull)
	require.Less(t, time.Since(start), time.Second)
}

func TestQueueJobTimeoutUnblocksWorker(t *testing.T) {
	done := make(chan string, 4)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if job.ID == "slow" {
			<-ctx.Done()
			done <- job.ID
			return ctx.Err()
		}
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 2, MaxRetries: 0, JobTimeout: 20 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "slow"}))
	require.NoError(t, q.Enqueue(Job{ID: "next"}))

	var seen []string
	for i := 0; i < 2; i++ {
		select {
		case id := <-done:
			seen = append(seen, id)
		case <-time.After(2 * time.Second):
			t.Fatal("worker stayed stuck on the slow job")
		}
	}
	require.Equal(t, []string{"slow", "next"}, seen)
}

func TestQueueDropsFailedJobWithoutRetry(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{}, 4)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		done <- struct{}{}
		return errors.New("boom")
	}, QueueConfig{Workers: 1, BufferSize: 2, MaxRetries: 0, RetryDelay: 10 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not attempted")
	}

	// no retry should arrive
	select {
	case <-done:
		t.Fatal("job was retried")
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, attempts)
}

func TestQueueRetriesUpToLimit(t *testing.T) {
	done := make(chan struct{}, 8)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- struct{}{}
		return errors.New("boom")
	}, QueueConfig{Workers: 1, BufferSize: 2, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))

	// initial attempt plus two retries
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d never happened", i+1)
		}
	}

	select {
	case <-done:
		t.Fatal("job exceeded its retry limit")
	case <-time.After(100 * time.Millisecond):
	}
}
