package camera

import (
	"context"
)

// DeviceType はカメラデバイスの種類
type DeviceType string

const (
	TypeDualCamera      DeviceType = "dual"        // デュアルカメラ（視差から深度を得る）
	TypeDualWideCamera  DeviceType = "dual_wide"   // 広角+超広角のデュアルカメラ
	TypeTrueDepthCamera DeviceType = "true_depth"  // 専用の深度センサー
	TypeWideAngleCamera DeviceType = "wide_angle"  // 通常の広角カメラ
	TypeUnspecified     DeviceType = "unspecified" // 種類を問わない
)

// Position はカメラの取り付け位置
type Position string

const (
	PositionBack        Position = "back"
	PositionFront       Position = "front"
	PositionUnspecified Position = "unspecified"
)

// MediaKind はデバイスが提供するメディアの種類
type MediaKind string

const (
	MediaVideo MediaKind = "video" // カラー映像
	MediaDepth MediaKind = "depth" // 深度データ
)

// DeviceDescriptor は検出されたカメラデバイスの情報
//
// プラットフォームのデバイス一覧が所有し、このパッケージは読み取りのみ行う。
type DeviceDescriptor struct {
	ID            string       `json:"id"`             // デバイスの一意識別子
	Name          string       `json:"name"`           // 表示名
	Device        string       `json:"device"`         // デバイスパス（例: /dev/video0）
	Type          DeviceType   `json:"type"`           // デバイスの種類
	Position      Position     `json:"position"`       // 取り付け位置
	SupportsVideo bool         `json:"supports_video"` // カラー映像を出力できる
	SupportsDepth bool         `json:"supports_depth"` // 深度データを出力できる
	Formats       []string     `json:"formats"`        // サポートされるフォーマット
	Resolutions   []Resolution `json:"resolutions"`    // サポートされる解像度
}

// Supports は指定されたメディアを提供できるかを返す
func (d DeviceDescriptor) Supports(kind MediaKind) bool {
	switch kind {
	case MediaDepth:
		return d.SupportsDepth
	case MediaVideo:
		return d.SupportsVideo
	default:
		return false
	}
}

// Resolution はカメラの解像度を表す
type Resolution struct {
	Width  int `json:"width"`  // 幅
	Height int `json:"height"` // 高さ
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]DeviceDescriptor, error)
}
