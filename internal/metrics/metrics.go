// Package metrics はキャプチャセッションのPrometheusメトリクスを提供する
package metrics

import (
	"errors"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"depthcap/internal/capture"
	"depthcap/internal/depth"
)

const namespace = "depthcap"

var sessionStates = []capture.State{
	capture.StateIdle,
	capture.StateConfiguring,
	capture.StateRunning,
	capture.StateUnauthorized,
	capture.StateConfigurationFailed,
	capture.StateStopped,
}

// Collector はセッションのイベントをメトリクスに記録する capture.Observer
type Collector struct {
	framesNormalized prometheus.Counter
	framesDropped    *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	state            *prometheus.GaugeVec
	sampleDepth      prometheus.Gauge
}

// NewCollector はメトリクスを reg に登録して Collector を作成する
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	c := &Collector{
		framesNormalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_normalized_total",
			Help:      "Total depth frames normalized to Depth32",
		}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total depth frames dropped by the delivery lane",
		}, []string{"reason"}), // queue_full|lane_stopped|buffer_access|unsupported_format|malformed_frame|out_of_bounds|other
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Capture session state transitions by target state",
		}, []string{"to"}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "Current capture session state (1 for the active state)",
		}, []string{"state"}),
		sampleDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_depth_meters",
			Help:      "Depth at the sample point of the latest normalized frame",
		}),
	}

	c.setState(capture.StateIdle)
	return c
}

// StateChanged は遷移を記録する
func (c *Collector) StateChanged(_, to capture.State) {
	c.transitions.WithLabelValues(string(to)).Inc()
	c.setState(to)
}

// FrameNormalized は正規化したフレームを記録する
func (c *Collector) FrameNormalized(sample depth.Sample) {
	c.framesNormalized.Inc()
	if !math.IsInf(float64(sample.Depth), 0) && !math.IsNaN(float64(sample.Depth)) {
		c.sampleDepth.Set(float64(sample.Depth))
	}
}

// FrameDropped は破棄したフレームを理由ごとに記録する
func (c *Collector) FrameDropped(_ depth.Header, err error) {
	c.framesDropped.WithLabelValues(DropReason(err)).Inc()
}

func (c *Collector) setState(current capture.State) {
	for _, s := range sessionStates {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(string(s)).Set(v)
	}
}

// DropReason はフレーム破棄の原因をラベル値に変換する
func DropReason(err error) string {
	switch {
	case errors.Is(err, depth.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, depth.ErrLaneStopped):
		return "lane_stopped"
	case errors.Is(err, depth.ErrBufferAccess):
		return "buffer_access"
	case errors.Is(err, depth.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, depth.ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, depth.ErrSampleOutOfBounds):
		return "out_of_bounds"
	default:
		return "other"
	}
}
