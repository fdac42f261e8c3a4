package quotegate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateSerializesCallers(t *testing.T) {
	t.Parallel()

	g := New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				err := g.Do(context.Background(), func(ctx context.Context) error {
					require.Equal(t, 1, g.Holders())
					return nil
				})
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 0, g.Holders())
	require.Equal(t, 1, g.MaxHolders())
}

func TestGateReleasedOnError(t *testing.T) {
	t.Parallel()

	g := New()
	sentinel := errors.New("vendor timeout")

	err := g.Do(context.Background(), func(ctx context.Context) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 0, g.Holders())

	// The gate must be usable again immediately.
	require.NoError(t, g.Do(context.Background(), func(ctx context.Context) error { return nil }))
}

func TestGateAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	g := New()
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	g.Release()
	require.Equal(t, 0, g.Holders())
}

func TestGateWaitObserver(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var waits []float64
	g := New(WithWaitObserver(func(s float64) {
		mu.Lock()
		waits = append(waits, s)
		mu.Unlock()
	}))

	require.NoError(t, g.Acquire(context.Background()))
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, g.Acquire(context.Background()))
		g.Release()
	}()

	time.Sleep(30 * time.Millisecond)
	g.Release()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, waits, 2)
	require.GreaterOrEqual(t, waits[1], 0.02)
}
