package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsAllTasks(t *testing.T) {
	p := New(3, 8, zerolog.Nop())
	var n atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) { n.Add(1) }))
	}
	p.Close()
	assert.Equal(t, int64(100), n.Load())
	assert.Equal(t, int64(100), p.Stats().Submitted.Load())
	assert.Equal(t, int64(100), p.Stats().Completed.Load())
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New(1, 1, zerolog.Nop())
	p.Close()
	p.Close()
	err := p.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPool_RecoversPanics(t *testing.T) {
	p := New(1, 4, zerolog.Nop())
	var ran atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { ran.Store(true) }))
	p.Close()
	assert.True(t, ran.Load())
	assert.Equal(t, int64(1), p.Stats().Panicked.Load())
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	p := New(1, 1, zerolog.Nop())
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	// fills the queue
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	p.Close()
}

func TestPool_ShutdownTimeoutCancelsTasks(t *testing.T) {
	p := New(1, 1, zerolog.Nop())
	aborted := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		close(aborted)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled")
	}
}
