package server

import (
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"depthcap/internal/capture"
	"depthcap/internal/depth"
)

// HealthResponse はヘルスチェックの応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はセッション状態の応答
type StatusResponse struct {
	SessionID string                 `json:"session_id"`
	State     capture.State          `json:"state"`
	Config    *capture.SessionConfig `json:"config,omitempty"`
	Frames    depth.LaneStats        `json:"frames"`
	Timestamp time.Time              `json:"timestamp"`
}

// SampleResponse は最新の深度サンプルの応答
type SampleResponse struct {
	// Depth は無限遠（視差0）のとき null
	Depth     *float32    `json:"depth"`
	Point     depth.Point `json:"point"`
	Format    string      `json:"source_format"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorResponse はエラーの応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type handler struct {
	session SessionView
	samples *depth.SampleStore
}

// health はヘルスチェックエンドポイント
func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// status はセッション状態の取得エンドポイント
func (h *handler) status(c *gin.Context) {
	if h.session == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:     "session_unavailable",
			Message:   "セッションがありません",
			Timestamp: time.Now(),
		})
		return
	}

	response := StatusResponse{
		SessionID: h.session.ID(),
		State:     h.session.State(),
		Frames:    h.session.FrameStats(),
		Timestamp: time.Now(),
	}
	if cfg, ok := h.session.Config(); ok {
		response.Config = &cfg
	}

	c.JSON(http.StatusOK, response)
}

// sample は最新の深度サンプルの取得エンドポイント
func (h *handler) sample(c *gin.Context) {
	var (
		sample depth.Sample
		ok     bool
	)
	if h.samples != nil {
		sample, ok = h.samples.Latest()
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "sample_not_found",
			Message:   "まだ深度フレームを受信していません",
			Timestamp: time.Now(),
		})
		return
	}

	response := SampleResponse{
		Point:     sample.Point,
		Format:    formatName(sample.Source.Format),
		Width:     sample.Source.Width,
		Height:    sample.Source.Height,
		Timestamp: sample.Timestamp,
	}
	if !math.IsInf(float64(sample.Depth), 0) && !math.IsNaN(float64(sample.Depth)) {
		d := sample.Depth
		response.Depth = &d
	}

	c.JSON(http.StatusOK, response)
}

func formatName(f depth.PixelFormat) string {
	if f == nil {
		return "unknown"
	}
	return f.String()
}
