package capture

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestControlLane_FIFO(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := newControlLane()

	var mu sync.Mutex
	var order []int
	var last <-chan struct{}
	for i := range 10 {
		done, err := lane.submit(context.Background(), func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, i)
		})
		require.NoError(t, err)
		last = done
	}
	waitClosed(t, last)
	lane.close()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestControlLane_SubmitAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := newControlLane()
	lane.close()
	lane.close()

	_, err := lane.submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestControlLane_SubmitCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := newControlLane()
	block := make(chan struct{})
	started := make(chan struct{})

	_, err := lane.submit(context.Background(), func() {
		close(started)
		<-block
	})
	require.NoError(t, err)
	waitClosed(t, started)

	// 実行中のタスクの後ろでバッファを埋める
	for range cap(lane.tasks) {
		_, err := lane.submit(context.Background(), func() {})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lane.submit(ctx, func() {})
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
	lane.close()
}

func TestControlLane_Owns(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := newControlLane()
	other := newControlLane()
	defer lane.close()
	defer other.close()

	assert.True(t, lane.owns(lane.withLane(context.Background())))
	assert.False(t, lane.owns(other.withLane(context.Background())))
	assert.False(t, lane.owns(context.Background()))
}

func TestControlLane_ShutdownFromTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := newControlLane()
	done, err := lane.submit(context.Background(), lane.shutdown)
	require.NoError(t, err)
	waitClosed(t, done)

	_, err = lane.submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrSessionClosed)
	lane.close()
}
