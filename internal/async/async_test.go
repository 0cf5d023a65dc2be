package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGo_SingleResult(t *testing.T) {
	ch := Go(context.Background(), func(context.Context) (int, error) { return 42, nil })

	v, err := Await(context.Background(), ch)
	require.NoError(t, err)
	require.Equal(t, 42, v)

	select {
	case r := <-ch:
		t.Fatalf("second result received: %+v", r)
	default:
	}
}

func TestGo_Error(t *testing.T) {
	boom := errors.New("boom")
	_, err := Await(context.Background(), Go(context.Background(), func(context.Context) (string, error) {
		return "", boom
	}))
	require.ErrorIs(t, err, boom)
}

func TestAwait_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)
	ch := Go(context.Background(), func(context.Context) (int, error) {
		<-block
		return 1, nil
	})
	_, err := Await(ctx, ch)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoop_FIFO(t *testing.T) {
	l := NewLoop()
	var got []int
	for i := range 5 {
		l.Post(func() { got = append(got, i) })
	}
	l.Post(func() {
		// Posted from within a running function: runs in the same drain.
		l.Post(func() { got = append(got, 99) })
	})

	require.Equal(t, 7, l.Drain())
	require.Equal(t, []int{0, 1, 2, 3, 4, 99}, got)
	require.Equal(t, 0, l.Drain())
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	ran := make(chan struct{})
	l.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("posted function did not run")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDeliver_RunsCallbackOnDispatcher(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	got := make(chan Result[string], 1)
	Deliver(ctx, NewScope(), l, func(context.Context) (string, error) {
		return "loaded", nil
	}, func(r Result[string]) { got <- r })

	select {
	case r := <-got:
		require.NoError(t, r.Err)
		require.Equal(t, "loaded", r.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not delivered")
	}
}

func TestDeliver_ClosedScopeDropsCallbackButWorkRuns(t *testing.T) {
	l := NewLoop()
	scope := NewScope()

	var sideEffect atomic.Bool
	release := make(chan struct{})
	finished := make(chan struct{})
	Deliver(context.Background(), scope, l, func(context.Context) (int, error) {
		<-release
		sideEffect.Store(true)
		close(finished)
		return 1, nil
	}, func(Result[int]) {
		t.Error("callback ran after scope was closed")
	})

	scope.Close()
	close(release)
	<-finished

	require.Eventually(t, func() bool { return scope.Dropped() == 1 }, 2*time.Second, 5*time.Millisecond)
	l.Drain()
	require.True(t, sideEffect.Load(), "work must complete even though the consumer is gone")
}

func TestDeliver_CloseWhileQueued(t *testing.T) {
	l := NewLoop()
	scope := NewScope()

	called := false
	Deliver(context.Background(), scope, l, func(context.Context) (int, error) {
		return 1, nil
	}, func(Result[int]) { called = true })

	// Wait until the callback sits in the queue, then close before draining.
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.queue) == 1
	}, 2*time.Second, 5*time.Millisecond)

	scope.Close()
	require.Equal(t, 1, l.Drain())
	require.False(t, called)
	require.EqualValues(t, 1, scope.Dropped())
}
