package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"depthcap/internal/camera"
	"depthcap/internal/capture"
	"depthcap/internal/depth"
)

// プラットフォーム
const (
	PlatformSynthetic = "synthetic" // ハードウェアなしの合成グラフ
	PlatformV4L2      = "v4l2"      // Linux の深度ノード
)

// 許可の判定方法
const (
	PermissionDevice  = "device"  // デバイスノードを開けるかで判定
	PermissionGranted = "granted" // 常に許可
	PermissionDenied  = "denied"  // 常に拒否
	PermissionPrompt  = "prompt"  // 標準入力で尋ねる
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Platform   string           `yaml:"platform" env:"DEPTHCAP_PLATFORM"`
	Camera     CameraConfig     `yaml:"camera"`
	Permission PermissionConfig `yaml:"permission"`
	Depth      DepthConfig      `yaml:"depth"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
}

// CameraConfig はデバイス選択とセッション構成の設定
type CameraConfig struct {
	PreferredTypes   []string `yaml:"preferred_types" env:"DEPTHCAP_CAMERA_PREFERRED_TYPES" envSeparator:","`
	Position         string   `yaml:"position" env:"DEPTHCAP_CAMERA_POSITION"`
	Preset           string   `yaml:"preset" env:"DEPTHCAP_CAMERA_PRESET"`
	DepthEnabled     bool     `yaml:"depth_enabled" env:"DEPTHCAP_CAMERA_DEPTH_ENABLED"`
	FilteringEnabled bool     `yaml:"filtering_enabled" env:"DEPTHCAP_CAMERA_FILTERING_ENABLED"`
	FilterControl    string   `yaml:"filter_control" env:"DEPTHCAP_CAMERA_FILTER_CONTROL"` // V4L2 のフィルタ用コントロール名

	// V4L2 のストリーム設定（0 ならプリセットの解像度）
	Width  int `yaml:"width" env:"DEPTHCAP_CAMERA_WIDTH"`
	Height int `yaml:"height" env:"DEPTHCAP_CAMERA_HEIGHT"`
	FPS    int `yaml:"fps" env:"DEPTHCAP_CAMERA_FPS"`
}

// PermissionConfig は許可の設定
type PermissionConfig struct {
	Mode string `yaml:"mode" env:"DEPTHCAP_PERMISSION_MODE"`
}

// DepthConfig はフレーム正規化の設定
type DepthConfig struct {
	SampleX   int `yaml:"sample_x" env:"DEPTHCAP_DEPTH_SAMPLE_X"`
	SampleY   int `yaml:"sample_y" env:"DEPTHCAP_DEPTH_SAMPLE_Y"`
	QueueSize int `yaml:"queue_size" env:"DEPTHCAP_DEPTH_QUEUE_SIZE"`
}

// LogConfig はログの設定
type LogConfig struct {
	Level  string `yaml:"level" env:"DEPTHCAP_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"DEPTHCAP_LOG_PRETTY"`
}

// ServerConfig は診断用HTTPサーバーの設定
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" env:"DEPTHCAP_SERVER_ENABLED"`
	Host    string `yaml:"host" env:"DEPTHCAP_SERVER_HOST"` // リッスンするホスト
	Port    int    `yaml:"port" env:"DEPTHCAP_SERVER_PORT"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"DEPTHCAP_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"DEPTHCAP_SERVER_WRITE_TIMEOUT"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Platform: PlatformSynthetic,
		Camera: CameraConfig{
			PreferredTypes: []string{
				string(camera.TypeDualCamera),
				string(camera.TypeWideAngleCamera),
				string(camera.TypeUnspecified),
			},
			Position:     string(camera.PositionUnspecified),
			Preset:       string(capture.PresetPhoto),
			DepthEnabled: true,
			FPS:          30,
		},
		Permission: PermissionConfig{Mode: PermissionDevice},
		Depth:      DepthConfig{QueueSize: depth.DefaultQueueSize},
		Log:        LogConfig{Level: "info"},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load は設定を読み込む
// デフォルト値、YAMLファイル（path が空でなければ）、DEPTHCAP_* 環境変数の順に上書きする
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("環境変数の解析に失敗: %w", err)
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

var (
	knownTypes = []camera.DeviceType{
		camera.TypeDualCamera,
		camera.TypeDualWideCamera,
		camera.TypeTrueDepthCamera,
		camera.TypeWideAngleCamera,
		camera.TypeUnspecified,
	}
	knownPositions = []camera.Position{
		camera.PositionBack,
		camera.PositionFront,
		camera.PositionUnspecified,
	}
	knownModes = []string{PermissionDevice, PermissionGranted, PermissionDenied, PermissionPrompt}
)

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	if c.Platform != PlatformSynthetic && c.Platform != PlatformV4L2 {
		errs = append(errs, fmt.Errorf("無効なプラットフォーム: %q", c.Platform))
	}

	for _, t := range c.Camera.PreferredTypes {
		if !slices.Contains(knownTypes, camera.DeviceType(t)) {
			errs = append(errs, fmt.Errorf("無効なデバイスの種類: %q", t))
		}
	}
	if c.Camera.Position != "" && !slices.Contains(knownPositions, camera.Position(c.Camera.Position)) {
		errs = append(errs, fmt.Errorf("無効な取り付け位置: %q", c.Camera.Position))
	}
	if c.Camera.Preset != "" && !capture.Preset(c.Camera.Preset).Valid() {
		errs = append(errs, fmt.Errorf("無効なプリセット: %q", c.Camera.Preset))
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 || c.Camera.FPS < 0 {
		errs = append(errs, fmt.Errorf("無効な解像度: %dx%d@%d", c.Camera.Width, c.Camera.Height, c.Camera.FPS))
	}
	if c.Camera.FilteringEnabled && !c.Camera.DepthEnabled {
		errs = append(errs, errors.New("フィルタリングには depth_enabled が必要です"))
	}

	if !slices.Contains(knownModes, c.Permission.Mode) {
		errs = append(errs, fmt.Errorf("無効な許可モード: %q", c.Permission.Mode))
	}

	if c.Depth.SampleX < 0 || c.Depth.SampleY < 0 {
		errs = append(errs, fmt.Errorf("無効なサンプル座標: (%d,%d)", c.Depth.SampleX, c.Depth.SampleY))
	}
	if c.Depth.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("無効なキュー長: %d", c.Depth.QueueSize))
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("無効なログレベル: %q", c.Log.Level))
	}

	// サーバー設定の検証
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PreferredTypes はデバイスの優先順位を返す
func (c *Config) PreferredTypes() []camera.DeviceType {
	types := make([]camera.DeviceType, 0, len(c.Camera.PreferredTypes))
	for _, t := range c.Camera.PreferredTypes {
		types = append(types, camera.DeviceType(t))
	}
	return types
}

// MediaKind は選択するデバイスに必要なメディアを返す
func (c *Config) MediaKind() camera.MediaKind {
	if c.Camera.DepthEnabled {
		return camera.MediaDepth
	}
	return camera.MediaVideo
}

// SamplePoint は診断用のサンプル座標を返す
func (c *Config) SamplePoint() depth.Point {
	return depth.Point{X: c.Depth.SampleX, Y: c.Depth.SampleY}
}
