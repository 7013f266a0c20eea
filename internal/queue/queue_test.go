package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PutGetOrder(t *testing.T) {
	q := New[string](4)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, "a"))
	require.NoError(t, q.Put(ctx, "b"))
	assert.Equal(t, 2, q.Len())

	item, open, err := q.Get(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, open)
	assert.Equal(t, "a", item)

	item, _, err = q.Get(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", item)
}

func TestQueue_PutAfterComplete(t *testing.T) {
	q := New[int](1)
	q.Complete()
	err := q.Put(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCompleted)
}

func TestQueue_GetTimeoutWhileOpen(t *testing.T) {
	q := New[int](1)
	_, open, err := q.Get(context.Background(), 10*time.Millisecond)
	// A bare timeout with production still open is a poll miss, not closure.
	assert.True(t, open)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_DrainsAfterComplete(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1))
	require.NoError(t, q.Put(ctx, 2))
	q.Complete()

	for want := 1; want <= 2; want++ {
		item, open, err := q.Get(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, open)
		assert.Equal(t, want, item)
	}

	_, open, err := q.Get(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestQueue_ProducerBlocksUntilConsumed(t *testing.T) {
	q := New[int](2)
	ctx := context.Background()

	const total = 3
	var produced, consumed int
	var mu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			if err := q.Put(ctx, i); !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			produced++
			mu.Unlock()
		}
		q.Complete()
	}()
	go func() {
		defer wg.Done()
		for {
			_, open, err := q.Get(ctx, 50*time.Millisecond)
			if err != nil {
				continue
			}
			if !open {
				return
			}
			mu.Lock()
			consumed++
			mu.Unlock()
		}
	}()
	wg.Wait()

	assert.Equal(t, total, produced)
	assert.Equal(t, total, consumed)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PutContextCancelled(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Put(context.Background(), 1)) // fill

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Put(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CompleteIdempotent(t *testing.T) {
	q := New[int](1)
	q.Complete()
	q.Complete()
	_, open, err := q.Get(context.Background(), time.Second)
	require.NoError(t, err)
	assert.False(t, open)
}
