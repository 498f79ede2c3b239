package metrics

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"depthcap/internal/capture"
	"depthcap/internal/depth"
)

func TestCollector_StateChanged(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("idle")))

	c.StateChanged(capture.StateIdle, capture.StateConfiguring)
	c.StateChanged(capture.StateConfiguring, capture.StateRunning)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("running")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.state.WithLabelValues("idle")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.state.WithLabelValues("configuring")))
}

func TestCollector_Frames(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.FrameNormalized(depth.Sample{Depth: 1.25})
	c.FrameNormalized(depth.Sample{Depth: float32(math.Inf(1))})
	c.FrameDropped(depth.Header{}, fmt.Errorf("wrap: %w", depth.ErrBufferAccess))
	c.FrameDropped(depth.Header{}, depth.ErrQueueFull)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.framesNormalized))
	// 無限遠のサンプルでは更新しない
	assert.Equal(t, 1.25, testutil.ToFloat64(c.sampleDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesDropped.WithLabelValues("buffer_access")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesDropped.WithLabelValues("queue_full")))
}

func TestDropReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{depth.ErrQueueFull, "queue_full"},
		{depth.ErrLaneStopped, "lane_stopped"},
		{depth.ErrUnsupportedFormat, "unsupported_format"},
		{depth.ErrMalformedFrame, "malformed_frame"},
		{depth.ErrSampleOutOfBounds, "out_of_bounds"},
		{errors.New("something else"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DropReason(tt.err))
		})
	}
}

func TestNewCollector_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "depthcap_session_state")
	assert.Contains(t, names, "depthcap_sample_depth_meters")
}
