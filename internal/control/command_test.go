package control

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueuePollPreservesOrder(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue(Command{Kind: Start}))
	require.NoError(t, q.Enqueue(Command{Kind: Pause}))
	require.NoError(t, q.Enqueue(Command{Kind: Skip, SkipFrames: 5}))

	got := q.Poll()
	require.Len(t, got, 3)
	require.Equal(t, Start, got[0].Kind)
	require.Equal(t, Pause, got[1].Kind)
	require.Equal(t, Skip, got[2].Kind)
	require.Equal(t, 5, got[2].SkipFrames)
}

func TestQueue_PollWhenEmptyReturnsNil(t *testing.T) {
	q := NewQueue()
	require.Empty(t, q.Poll())
}

func TestQueue_EnqueueNeverBlocksWhenFull(t *testing.T) {
	q := NewQueue()
	for i := 0; i < defaultQueueCapacity; i++ {
		require.NoError(t, q.Enqueue(Command{Kind: Stop}))
	}
	err := q.Enqueue(Command{Kind: Stop})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestQueue_ConcurrentEnqueueDoesNotRace(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(Command{Kind: Skip, SkipFrames: 1})
				q.Poll()
			}
		}()
	}
	wg.Wait()
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "ReconfigureDepth", ReconfigureDepth.String())
	require.Equal(t, "Stop", Stop.String())
}
