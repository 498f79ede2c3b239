package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"depthcap/internal/camera"
	"depthcap/internal/depth"
	"depthcap/internal/permission"
)

func authorized() permission.Authorizer {
	return permission.NewStaticAuthorizer(permission.StateAuthorized)
}

func TestSession_RunningDeliversSamples(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := depth.NewSampleStore()
	graph := NewSyntheticGraph(SyntheticOptions{Format: depth.Disparity16{}})
	h := newHarness(t, authorized(), graph, []camera.DeviceDescriptor{wideDevice(), dualDevice()}, Options{
		MediaKind:    camera.MediaDepth,
		DepthEnabled: true,
		Observers:    []Observer{SampleObserver{Store: store}},
	})

	require.NoError(t, h.session.Start(context.Background()))
	h.waitFor(t, StateRunning)
	require.Eventually(t, graph.Running, 2*time.Second, 5*time.Millisecond)

	cfg, ok := h.session.Config()
	require.True(t, ok)
	assert.Equal(t, "dual-0", cfg.Device.ID)
	assert.True(t, cfg.DepthEnabled)

	for range 3 {
		delivered, err := graph.Emit()
		require.NoError(t, err)
		require.True(t, delivered)
	}
	require.Eventually(t, func() bool {
		return h.session.FrameStats().Normalized == 3
	}, 2*time.Second, 5*time.Millisecond)

	sample, ok := store.Latest()
	require.True(t, ok)
	assert.InDelta(t, DefaultScene(0, 0, 3), sample.Depth, 0.01)
	assert.Equal(t, depth.Depth32{}, sample.Format)

	h.stop(t)
	assert.Equal(t, StateStopped, h.session.State())
	assert.False(t, graph.Running())
	assert.Equal(t, 0, graph.EnabledConnections())
	assert.Equal(t, graph.Emitted(), graph.Released())
	assert.Empty(t, h.host.calls())

	assert.Equal(t, []transition{
		{StateIdle, StateConfiguring},
		{StateConfiguring, StateRunning},
		{StateRunning, StateStopped},
	}, h.observer.states())
}

func TestSession_Generator(t *testing.T) {
	defer goleak.VerifyNone(t)

	graph := NewSyntheticGraph(SyntheticOptions{Interval: 2 * time.Millisecond})
	h := newHarness(t, authorized(), graph, []camera.DeviceDescriptor{dualDevice()}, Options{DepthEnabled: true})

	require.NoError(t, h.session.Start(context.Background()))
	h.waitFor(t, StateRunning)
	require.Eventually(t, func() bool {
		return h.session.FrameStats().Normalized >= 3
	}, 2*time.Second, 5*time.Millisecond)

	h.stop(t)
	assert.Equal(t, graph.Emitted(), graph.Released())
}

func TestSession_PromptDenied(t *testing.T) {
	defer goleak.VerifyNone(t)

	auth := permission.NewPromptAuthorizer()
	graph := NewSyntheticGraph(SyntheticOptions{})
	h := newHarness(t, auth, graph, []camera.DeviceDescriptor{dualDevice()}, Options{DepthEnabled: true})

	require.NoError(t, h.session.Start(context.Background()))
	waitClosed(t, auth.Asked())
	assert.Equal(t, StateConfiguring, h.session.State())

	auth.Resolve(false)
	h.waitFor(t, StateUnauthorized)

	calls := h.host.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, StateUnauthorized, calls[0].State)
	assert.ErrorIs(t, calls[0], permission.ErrPermissionDenied)

	// 拒否された場合は何も構成しない
	assert.Equal(t, 0, graph.StartCalls())
	assert.False(t, graph.InputAttached())
	assert.Empty(t, graph.Connections())

	h.stop(t)
	assert.Equal(t, StateUnauthorized, h.session.State())
	assert.Len(t, h.host.calls(), 1)
	assert.Equal(t, 1, auth.Requests())
}

func TestSession_StaticDenied(t *testing.T) {
	defer goleak.VerifyNone(t)

	graph := NewSyntheticGraph(SyntheticOptions{})
	h := newHarness(t, permission.NewStaticAuthorizer(permission.StateDenied), graph, []camera.DeviceDescriptor{dualDevice()}, Options{})

	require.NoError(t, h.session.Start(context.Background()))
	h.waitFor(t, StateUnauthorized)
	assert.Equal(t, 0, graph.StartCalls())

	h.stop(t)
}

func TestSession_StopFromHostCallback(t *testing.T) {
	defer goleak.VerifyNone(t)

	graph := NewSyntheticGraph(SyntheticOptions{})
	h := newHarness(t, permission.NewStaticAuthorizer(permission.StateDenied), graph, []camera.DeviceDescriptor{dualDevice()}, Options{})

	stopped := make(chan error, 1)
	h.session.host = HostFunc(func(ctx context.Context, _ *TerminalError) {
		stopped <- h.session.Stop(ctx)
	})

	require.NoError(t, h.session.Start(context.Background()))

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ホストのコールバック内の Stop が戻りません")
	}
	h.waitFor(t, StateUnauthorized)

	// 以降の Stop も待たずに戻り、レーンのワーカーは終了している
	h.stop(t)
	assert.Equal(t, StateUnauthorized, h.session.State())
	assert.NoError(t, h.session.Start(context.Background()))
}

func TestSession_StartSubmitFailureStaysIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	graph := NewSyntheticGraph(SyntheticOptions{})
	h := newHarness(t, authorized(), graph, []camera.DeviceDescriptor{dualDevice()}, Options{DepthEnabled: true})

	block := make(chan struct{})
	started := make(chan struct{})
	_, err := h.session.control.submit(context.Background(), func() {
		close(started)
		<-block
	})
	require.NoError(t, err)
	waitClosed(t, started)
	for range cap(h.session.control.tasks) {
		_, err := h.session.control.submit(context.Background(), func() {})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = h.session.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateIdle, h.session.State())
	assert.Empty(t, h.observer.states())

	// 失敗した Start の後でも再び開始できる
	close(block)
	require.NoError(t, h.session.Start(context.Background()))
	h.waitFor(t, StateRunning)

	h.stop(t)
}

func TestSession_NoDevice(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name    string
		devices []camera.DeviceDescriptor
		opts    Options
	}{
		{"デバイスなし", nil, Options{}},
		{"深度デバイスなし", []camera.DeviceDescriptor{wideDevice()}, Options{MediaKind: camera.MediaDepth}},
		{"空の優先順位", []camera.DeviceDescriptor{dualDevice()}, Options{Preferred: []camera.DeviceType{}}},
		{"位置が一致しない", []camera.DeviceDescriptor{dualDevice()}, Options{Position: camera.PositionFront}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := NewSyntheticGraph(SyntheticOptions{})
			h := newHarness(t, authorized(), graph, tt.devices, tt.opts)

			require.NoError(t, h.session.Start(context.Background()))
			h.waitFor(t, StateConfigurationFailed)

			calls := h.host.calls()
			require.Len(t, calls, 1)
			assert.ErrorIs(t, calls[0], camera.ErrNoDeviceFound)
			assert.Equal(t, 0, graph.StartCalls())

			h.stop(t)
		})
	}
}

func TestSession_DepthAttachFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	graph := NewSyntheticGraph(SyntheticOptions{})
	graph.Fail(StepAddDepthOutput, errors.New("depth output busy"))
	h := newHarness(t, authorized(), graph, []camera.DeviceDescriptor{dualDevice()}, Options{DepthEnabled: true})

	require.NoError(t, h.session.Start(context.Background()))
	h.waitFor(t, StateConfigurationFailed)

	calls := h.host.calls()
	require.Len(t, calls, 1)
	assert.ErrorIs(t, calls[0], ErrOutputAttach)

	// カラー出力も開始されない
	assert.Equal(t, 0, graph.StartCalls())
	assert.Equal(t, 0, graph.EnabledConnections())
	_, ok := h.session.Config()
	assert.False(t, ok)

	h.stop(t)
}

func TestSession_StartRunningFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	graph := NewSyntheticGraph(SyntheticOptions{})
	graph.Fail(StepStart, errors.New("stream refused"))
	h := newHarness(t, authorized(), graph, []camera.DeviceDescriptor{dualDevice()}, Options{DepthEnabled: true})

	require.NoError(t, h.session.Start(context.Background()))
	h.waitFor(t, StateConfigurationFailed)

	assert.Equal(t, []transition{
		{StateIdle, StateConfiguring},
		{StateConfiguring, StateRunning},
		{StateRunning, StateConfigurationFailed},
	}, h.observer.states())
	assert.Len(t, h.host.calls(), 1)
	assert.Equal(t, 0, graph.EnabledConnections())

	h.stop(t)
}

func TestSession_StartIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	graph := NewSyntheticGraph(SyntheticOptions{})
	h := newHarness(t, authorized(), graph, []camera.DeviceDescriptor{dualDevice()}, Options{DepthEnabled: true})

	require.NoError(t, h.session.Start(context.Background()))
	require.NoError(t, h.session.Start(context.Background()))
	h.waitFor(t, StateRunning)
	require.Eventually(t, graph.Running, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.session.Start(context.Background()))

	assert.Equal(t, 1, graph.StartCalls())

	h.stop(t)
	require.NoError(t, h.session.Start(context.Background()))
	assert.Equal(t, StateStopped, h.session.State())
}

func TestSession_StopWhileConfiguring(t *testing.T) {
	defer goleak.VerifyNone(t)

	auth := permission.NewPromptAuthorizer()
	graph := NewSyntheticGraph(SyntheticOptions{})
	h := newHarness(t, auth, graph, []camera.DeviceDescriptor{dualDevice()}, Options{DepthEnabled: true})

	require.NoError(t, h.session.Start(context.Background()))
	waitClosed(t, auth.Asked())

	h.stop(t)
	assert.Equal(t, StateStopped, h.session.State())
	assert.Empty(t, h.host.calls())
	assert.Equal(t, 0, graph.StartCalls())

	// 停止後にプロンプトが応答されても再開しない
	auth.Resolve(true)
	assert.Never(t, func() bool {
		return h.session.State() != StateStopped
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 0, graph.StartCalls())
}

func TestSession_StopFromIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	graph := NewSyntheticGraph(SyntheticOptions{})
	h := newHarness(t, authorized(), graph, []camera.DeviceDescriptor{dualDevice()}, Options{})

	h.stop(t)
	h.stop(t)
	assert.Equal(t, StateStopped, h.session.State())
	assert.Equal(t, []transition{{StateIdle, StateStopped}}, h.observer.states())
}

func TestSession_BadFrameDoesNotBlockNext(t *testing.T) {
	defer goleak.VerifyNone(t)

	graph := NewSyntheticGraph(SyntheticOptions{})
	graph.FailFrameLock(2, errors.New("buffer locked"))
	h := newHarness(t, authorized(), graph, []camera.DeviceDescriptor{dualDevice()}, Options{DepthEnabled: true})

	require.NoError(t, h.session.Start(context.Background()))
	h.waitFor(t, StateRunning)
	require.Eventually(t, graph.Running, 2*time.Second, 5*time.Millisecond)

	for range 3 {
		_, err := graph.Emit()
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		stats := h.session.FrameStats()
		return stats.Normalized == 2 && stats.Dropped == 1
	}, 2*time.Second, 5*time.Millisecond)

	drops := h.observer.dropped()
	require.Len(t, drops, 1)
	assert.ErrorIs(t, drops[0], depth.ErrBufferAccess)
	assert.Equal(t, StateRunning, h.session.State())

	h.stop(t)
	assert.Equal(t, uint64(3), graph.Released())
}

func TestSession_OutOfBoundsSamplePoint(t *testing.T) {
	defer goleak.VerifyNone(t)

	graph := NewSyntheticGraph(SyntheticOptions{Width: 4, Height: 4})
	h := newHarness(t, authorized(), graph, []camera.DeviceDescriptor{dualDevice()}, Options{
		DepthEnabled: true,
		SamplePoint:  depth.Point{X: 10, Y: 0},
	})

	require.NoError(t, h.session.Start(context.Background()))
	h.waitFor(t, StateRunning)
	require.Eventually(t, graph.Running, 2*time.Second, 5*time.Millisecond)

	_, err := graph.Emit()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(h.observer.dropped()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, h.observer.dropped()[0], depth.ErrSampleOutOfBounds)

	h.stop(t)
}

func TestSession_IDIsUnique(t *testing.T) {
	a := newHarness(t, authorized(), NewSyntheticGraph(SyntheticOptions{}), nil, Options{})
	b := newHarness(t, authorized(), NewSyntheticGraph(SyntheticOptions{}), nil, Options{})
	defer a.stop(t)
	defer b.stop(t)

	assert.NotEmpty(t, a.session.ID())
	assert.NotEqual(t, a.session.ID(), b.session.ID())
}
