package cancellation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCancelVisibleToClones(t *testing.T) {
	tok := New()
	clones := []Token{tok.Clone(), tok.Clone(), tok}
	for _, c := range clones {
		require.False(t, c.IsCancelled())
	}

	clones[1].Cancel()
	for i, c := range clones {
		require.Truef(t, c.IsCancelled(), "clone %d not cancelled", i)
	}
}

func TestCancelIdempotent(t *testing.T) {
	tok := New()
	tok.Cancel()
	require.NotPanics(t, tok.Cancel)
	require.True(t, tok.IsCancelled())
}

func TestConcurrentCancel(t *testing.T) {
	tok := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Clone().Cancel()
		}()
	}
	wg.Wait()
	require.True(t, tok.IsCancelled())
}

func TestWaitWakesAllWaiters(t *testing.T) {
	tok := New()
	const waiters = 8

	var started, finished sync.WaitGroup
	woke := make(chan time.Time, waiters)
	for i := 0; i < waiters; i++ {
		started.Add(1)
		finished.Add(1)
		go func(c Token) {
			defer finished.Done()
			started.Done()
			if err := c.Wait(context.Background()); err != nil {
				t.Errorf("Wait: %v", err)
			}
			woke <- time.Now()
		}(tok.Clone())
	}
	started.Wait()
	time.Sleep(10 * time.Millisecond)

	tok.Cancel()
	cancelled := time.Now()
	finished.Wait()
	close(woke)

	for at := range woke {
		require.Less(t, at.Sub(cancelled), time.Second)
	}
}

func TestWaitContextEnds(t *testing.T) {
	tok := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tok.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, tok.IsCancelled())
}

func TestWaitAfterCancelReturnsImmediately(t *testing.T) {
	tok := New()
	tok.Cancel()
	require.NoError(t, tok.Wait(context.Background()))
}

func TestContextCause(t *testing.T) {
	tok := New()
	ctx, cancel := tok.Context(context.Background())
	defer cancel()

	tok.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("derived context not cancelled")
	}
	require.True(t, errors.Is(context.Cause(ctx), ErrCancelled))
}

func TestContextReleaseDoesNotCancelToken(t *testing.T) {
	tok := New()
	_, cancel := tok.Context(context.Background())
	cancel()
	cancel()
	require.False(t, tok.IsCancelled())
}

func TestZeroToken(t *testing.T) {
	var tok Token
	require.False(t, tok.IsCancelled())
	tok.Cancel()
	require.False(t, tok.IsCancelled())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tok.Wait(ctx), context.DeadlineExceeded)
}
