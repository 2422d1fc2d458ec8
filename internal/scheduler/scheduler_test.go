package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))
}

func TestEnqueueRunsJob(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	var ran atomic.Int32
	s.Register("job", func(ctx context.Context, job Job) error {
		ran.Add(1)
		return nil
	})

	id, err := s.Enqueue("job", "u1", "m1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	drain(t, s)
	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, Status{}, s.Status())
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	_, err := s.Enqueue("nope", "u1", "m1")
	assert.ErrorContains(t, err, "no handler registered")
}

func TestRetryBudgetIsMaxRetriesPlusOne(t *testing.T) {
	s := New(Options{MaxRetries: 3})
	defer s.Close()

	var attempts atomic.Int32
	s.Register("fail", func(ctx context.Context, job Job) error {
		attempts.Add(1)
		return errors.New("boom")
	})

	_, err := s.Enqueue("fail", "u1", "m1")
	require.NoError(t, err)
	drain(t, s)

	assert.Equal(t, int32(4), attempts.Load(), "initial attempt plus three retries")
	assert.Equal(t, 1, s.Status().Dropped)
}

func TestEventualSuccessIsNotDropped(t *testing.T) {
	s := New(Options{MaxRetries: 3})
	defer s.Close()

	var attempts atomic.Int32
	s.Register("flaky", func(ctx context.Context, job Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	_, err := s.Enqueue("flaky", "u1", "m1")
	require.NoError(t, err)
	drain(t, s)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 0, s.Status().Dropped)
}

func TestConcurrencyCeiling(t *testing.T) {
	s := New(Options{MaxConcurrent: 3})
	defer s.Close()

	var cur, peak atomic.Int32
	block := make(chan struct{})
	s.Register("slow", func(ctx context.Context, job Job) error {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-block
		cur.Add(-1)
		return nil
	})

	for i := 0; i < 10; i++ {
		_, err := s.Enqueue("slow", "u1", "m1")
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return s.Status().Active == 3 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 7, s.Status().Queued)

	close(block)
	drain(t, s)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestEnqueueDoesNotBlockOnBusyPool(t *testing.T) {
	s := New(Options{MaxConcurrent: 1})
	defer s.Close()

	block := make(chan struct{})
	s.Register("slow", func(ctx context.Context, job Job) error {
		<-block
		return nil
	})

	_, err := s.Enqueue("slow", "u1", "m0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if _, err := s.Enqueue("slow", "u1", "m1"); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked while the pool was busy")
	}
	close(block)
	drain(t, s)
}

func TestRetriedJobRunsBeforeFreshWork(t *testing.T) {
	s := New(Options{MaxConcurrent: 1, MaxRetries: 1})
	defer s.Close()

	var mu sync.Mutex
	var order []string
	failed := false
	s.Register("job", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, job.MessageID)
		if job.MessageID == "first" && !failed {
			failed = true
			return errors.New("once")
		}
		return nil
	})

	_, err := s.Enqueue("job", "u1", "first")
	require.NoError(t, err)
	_, err = s.Enqueue("job", "u1", "second")
	require.NoError(t, err)
	_, err = s.Enqueue("job", "u1", "third")
	require.NoError(t, err)
	drain(t, s)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, order)
	// The failed first attempt is retried at the head, ahead of queued work.
	assert.Equal(t, []string{"first", "first", "second", "third"}, order)
}

func TestJobTimeoutCancelsHandlerContext(t *testing.T) {
	s := New(Options{JobTimeout: 20 * time.Millisecond, MaxRetries: 1})
	defer s.Close()

	var sawDeadline atomic.Bool
	s.Register("hang", func(ctx context.Context, job Job) error {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			sawDeadline.Store(true)
		}
		return ctx.Err()
	})

	_, err := s.Enqueue("hang", "u1", "m1")
	require.NoError(t, err)
	drain(t, s)

	assert.True(t, sawDeadline.Load())
	assert.Equal(t, 1, s.Status().Dropped)
}
