package view

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	l := NewLoader(func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, 5, 10*time.Millisecond)

	l.LoadMore(context.Background())
	assert.Equal(t, int64(3), calls.Load())
	assert.NoError(t, l.Err())
}

func TestLoaderParksErrorAfterRetries(t *testing.T) {
	var calls atomic.Int64
	l := NewLoader(func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("backend down")
	}, 2, 10*time.Millisecond)

	l.LoadMore(context.Background())
	assert.Equal(t, int64(3), calls.Load(), "initial attempt plus two retries")
	require.Error(t, l.Err())

	// while the error shows, further triggers are ignored
	l.LoadMore(context.Background())
	assert.Equal(t, int64(3), calls.Load())

	// dismissing re-arms the loader
	l.Dismiss()
	assert.NoError(t, l.Err())
	l.LoadMore(context.Background())
	assert.Greater(t, calls.Load(), int64(3))
}

func TestLoaderDropsReentrantCalls(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	l := NewLoader(func(ctx context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	}, 1, 10*time.Millisecond)

	go l.LoadMore(context.Background())
	<-started

	l.LoadMore(context.Background()) // in-flight: dropped
	close(release)

	require.Eventually(t, func() bool { return calls.Load() == 1 },
		time.Second, time.Millisecond)
}

func TestLoaderHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	l := NewLoader(func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("fail")
	}, 10, time.Second)

	l.LoadMore(ctx)
	assert.LessOrEqual(t, calls.Load(), int64(1), "cancelled context stops the retry loop")
	assert.Error(t, l.Err())
}
