package flush

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolExecutor_RunsTasks(t *testing.T) {
	p := NewPoolExecutor(3, 10)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func() { ran.Add(1) }))
	}
	p.Close()

	assert.Equal(t, int32(10), ran.Load())
	assert.ErrorIs(t, p.Submit(func() {}), ErrExecutorClosed)
	p.Close()
}

func TestPoolExecutor_QueueFull(t *testing.T) {
	p := NewPoolExecutor(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(func() {}))
	assert.ErrorIs(t, p.Submit(func() {}), ErrQueueFull)

	close(release)
	p.Close()
}

func TestGoExecutor(t *testing.T) {
	done := make(chan struct{})
	require.NoError(t, GoExecutor{}.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}
