package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalManagerSerializesSameSite(t *testing.T) {
	m := NewLocalManager()

	release, err := m.Acquire(context.Background(), "site-a")
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		entered bool
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r, err := m.Acquire(context.Background(), "site-a")
		assert.NoError(t, err)
		mu.Lock()
		entered = true
		mu.Unlock()
		r()
	}()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.False(t, entered, "second acquire must wait for the first release")
	mu.Unlock()

	release()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never proceeded after release")
	}
}

func TestLocalManagerIndependentSites(t *testing.T) {
	m := NewLocalManager()

	releaseA, err := m.Acquire(context.Background(), "site-a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	releaseB, err := m.Acquire(ctx, "site-b")
	require.NoError(t, err, "another site must not be blocked")
	releaseB()
}

func TestLocalManagerAcquireCancelled(t *testing.T) {
	m := NewLocalManager()

	release, err := m.Acquire(context.Background(), "site-a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(ctx, "site-a")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The lock is still usable after the cancelled waiter backed out.
	release()
	release, err = m.Acquire(context.Background(), "site-a")
	require.NoError(t, err)
	release()
}

func TestLocalManagerReleaseIsReusable(t *testing.T) {
	m := NewLocalManager()

	for i := 0; i < 5; i++ {
		release, err := m.Acquire(context.Background(), "site-a")
		require.NoError(t, err)
		release()
	}
}
