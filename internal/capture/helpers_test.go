package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"depthcap/internal/camera"
	"depthcap/internal/depth"
	"depthcap/internal/permission"
)

func dualDevice() camera.DeviceDescriptor {
	return camera.DeviceDescriptor{
		ID:            "dual-0",
		Name:          "デュアルカメラ",
		Device:        "/dev/video0",
		Type:          camera.TypeDualCamera,
		Position:      camera.PositionBack,
		SupportsVideo: true,
		SupportsDepth: true,
	}
}

func depthOnlyDevice() camera.DeviceDescriptor {
	return camera.DeviceDescriptor{
		ID:            "tof-0",
		Name:          "深度センサー",
		Device:        "/dev/video2",
		Type:          camera.TypeTrueDepthCamera,
		Position:      camera.PositionFront,
		SupportsDepth: true,
	}
}

func wideDevice() camera.DeviceDescriptor {
	return camera.DeviceDescriptor{
		ID:            "wide-0",
		Name:          "広角カメラ",
		Device:        "/dev/video4",
		Type:          camera.TypeWideAngleCamera,
		Position:      camera.PositionBack,
		SupportsVideo: true,
	}
}

type recordingHost struct {
	mu     sync.Mutex
	errors []*TerminalError
}

func (h *recordingHost) SessionFailed(_ context.Context, err *TerminalError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}

func (h *recordingHost) calls() []*TerminalError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*TerminalError(nil), h.errors...)
}

type transition struct {
	from, to State
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []transition
	samples     []depth.Sample
	drops       []error
}

func (o *recordingObserver) StateChanged(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, transition{from, to})
}

func (o *recordingObserver) FrameNormalized(sample depth.Sample) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples = append(o.samples, sample)
}

func (o *recordingObserver) FrameDropped(_ depth.Header, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drops = append(o.drops, err)
}

func (o *recordingObserver) states() []transition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]transition(nil), o.transitions...)
}

func (o *recordingObserver) dropped() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.drops...)
}

type harness struct {
	session  *Session
	graph    *SyntheticGraph
	host     *recordingHost
	observer *recordingObserver
}

func newHarness(t *testing.T, auth permission.Authorizer, graph *SyntheticGraph, devices []camera.DeviceDescriptor, opts Options) *harness {
	t.Helper()

	logger := zerolog.Nop()
	h := &harness{
		graph:    graph,
		host:     &recordingHost{},
		observer: &recordingObserver{},
	}
	opts.Observers = append(opts.Observers, h.observer)
	h.session = NewSession(Dependencies{
		Gate:     permission.NewGate(auth, logger),
		Selector: camera.NewSelector(camera.NewMockDiscovery(devices...), logger),
		Graph:    graph,
		Host:     h.host,
		Logger:   logger,
	}, opts)
	return h
}

func (h *harness) waitFor(t *testing.T, states ...State) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := h.session.WaitFor(ctx, states...)
	require.NoError(t, err, "状態 %v を待機中にタイムアウトしました（現在: %s）", states, state)
	return state
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.session.Stop(ctx))
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("タイムアウトしました")
	}
}
