package sender

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsQueuedJobs(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Enqueue(context.Background(), "notify", "sendMessage", func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	d.Close()

	assert.EqualValues(t, 3, ran.Load())
	assert.Zero(t, d.ErrorCount())
	assert.Equal(t, Stats{Queued: 3, Sent: 3}, d.Stats())
}

func TestDispatcherCountsFailures(t *testing.T) {
	p := DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	d := NewDispatcher(Options{Workers: 1, Policy: p})

	require.NoError(t, d.Enqueue(context.Background(), "notify", "sendMessage", func(context.Context) error {
		return statusErr{code: 400, msg: "Bad Request"}
	}))
	d.Close()

	assert.EqualValues(t, 1, d.ErrorCount())
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()

	err := d.Enqueue(context.Background(), "notify", "sendMessage", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.EqualValues(t, 1, d.Stats().Rejected)
	d.Close()
}

func TestDispatcherFullQueue(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	block := func(context.Context) error { <-release; return nil }

	require.NoError(t, d.Enqueue(context.Background(), "a", "", block))
	// Wait for the worker to take the first job so the queue slot is free.
	require.Eventually(t, func() bool { return len(d.jobs) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Enqueue(context.Background(), "b", "", block))
	assert.ErrorIs(t, d.Enqueue(context.Background(), "c", "", block), ErrQueueFull)

	close(release)
	d.Close()
	assert.Equal(t, Stats{Queued: 2, Sent: 2, Rejected: 1}, d.Stats())
}

func TestDispatcherEnqueueRacesClose(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 4})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = d.Enqueue(context.Background(), "x", "", func(context.Context) error { return nil })
		}
	}()
	d.Close()
	<-done
	st := d.Stats()
	assert.Equal(t, st.Queued, st.Sent)
}
