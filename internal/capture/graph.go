package capture

import (
	"context"

	"depthcap/internal/camera"
	"depthcap/internal/depth"
)

// Preset はキャプチャの解像度/品質プリセット
type Preset string

const (
	PresetPhoto  Preset = "photo"
	PresetHigh   Preset = "high"
	PresetMedium Preset = "medium"
	PresetLow    Preset = "low"
	PresetVGA    Preset = "vga"
)

// Valid は既知のプリセットかどうかを返す
func (p Preset) Valid() bool {
	switch p {
	case PresetPhoto, PresetHigh, PresetMedium, PresetLow, PresetVGA:
		return true
	default:
		return false
	}
}

// FrameSink は深度フレームの配信先
//
// Deliver はブロックしてはならない。受け付けなかったフレームは破棄される。
type FrameSink interface {
	Deliver(f depth.Frame) bool
}

// Connection は出力の配信接続
type Connection interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// Output はキャプチャグラフの出力
type Output interface {
	// Connection は入力との配信接続を返す。接続がなければ false
	Connection() (Connection, bool)
}

// DepthOutput は深度データ出力
type DepthOutput interface {
	Output
	// SetFilteringEnabled は時間/空間方向の平滑化を切り替える
	SetFilteringEnabled(enabled bool) error
}

// Graph はプラットフォームのキャプチャグラフ
//
// 構成の変更は BeginConfiguration と CommitConfiguration/AbandonConfiguration
// の間で行う。Abandon は Begin 以降に追加したものをすべて取り外す。
type Graph interface {
	BeginConfiguration()
	SetPreset(p Preset) error
	AddInput(device camera.DeviceDescriptor) error
	AddVideoOutput() (Output, error)
	AddDepthOutput() (DepthOutput, error)
	CommitConfiguration() error
	AbandonConfiguration()

	// StartRunning はフレームの配信を開始する。ブロックする可能性がある
	StartRunning(ctx context.Context, sink FrameSink) error
	// StopRunning は配信を止め、キャプチャ資源をすべて解放する
	StopRunning()
}

// SessionConfig はコミットされたセッション構成（コミット後は不変）
type SessionConfig struct {
	Device           camera.DeviceDescriptor `json:"device"`
	Preset           Preset                  `json:"preset"`
	DepthEnabled     bool                    `json:"depth_enabled"`
	FilteringEnabled bool                    `json:"filtering_enabled"`
}
