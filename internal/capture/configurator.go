package capture

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"depthcap/internal/camera"
)

// ConfigureOptions は構成の要求内容
type ConfigureOptions struct {
	Preset       Preset
	DepthEnabled bool
	Filtering    bool
}

// Configurator はキャプチャグラフを1つのトランザクションとして構成する
type Configurator struct {
	graph Graph
	log   zerolog.Logger
}

// NewConfigurator は新しいConfiguratorを作成する
func NewConfigurator(graph Graph, logger zerolog.Logger) *Configurator {
	return &Configurator{graph: graph, log: logger}
}

// Configure はデバイスを入力に、カラー出力と（有効なら）深度出力を接続する
//
// いずれかの必須ステップが失敗した場合はトランザクションを破棄し、
// 有効化した接続をすべて無効に戻す。
func (c *Configurator) Configure(ctx context.Context, device camera.DeviceDescriptor, opts ConfigureOptions) (cfg SessionConfig, err error) {
	c.graph.BeginConfiguration()

	var enabled []Connection
	committed := false
	defer func() {
		if committed {
			return
		}
		for _, conn := range enabled {
			conn.SetEnabled(false)
		}
		c.graph.AbandonConfiguration()
		c.log.Warn().Err(err).Msg("構成トランザクションを破棄しました")
	}()

	cfg = SessionConfig{
		Device:       device,
		Preset:       opts.Preset,
		DepthEnabled: opts.DepthEnabled,
	}

	if opts.Preset != "" {
		if perr := c.graph.SetPreset(opts.Preset); perr != nil {
			c.log.Warn().Err(perr).Str("preset", string(opts.Preset)).Msg("プリセットを適用できないためデフォルトのまま続行します")
			cfg.Preset = ""
		}
	}

	// 1. デバイス入力
	if err := c.graph.AddInput(device); err != nil {
		return SessionConfig{}, fmt.Errorf("%w: %s: %w", ErrInputAttach, device.Device, err)
	}

	// 2. カラー出力と深度出力
	video, err := c.graph.AddVideoOutput()
	if err != nil {
		return SessionConfig{}, fmt.Errorf("%w: カラー出力: %w", ErrOutputAttach, err)
	}
	primary := Output(video)

	if opts.DepthEnabled {
		depthOut, err := c.graph.AddDepthOutput()
		if err != nil {
			return SessionConfig{}, fmt.Errorf("%w: 深度出力: %w", ErrOutputAttach, err)
		}
		primary = depthOut

		// 3. フィルタリング（失敗しても続行）
		if opts.Filtering {
			if ferr := depthOut.SetFilteringEnabled(true); ferr != nil {
				c.log.Warn().Err(ferr).Msg("深度フィルタリングを有効にできないため無効のまま続行します")
			} else {
				cfg.FilteringEnabled = true
			}
		}
	}

	// 4. 配信接続
	conn, ok := primary.Connection()
	if !ok {
		return SessionConfig{}, ErrNoConnection
	}
	conn.SetEnabled(true)
	enabled = append(enabled, conn)

	if opts.DepthEnabled {
		// カラー接続は任意（深度専用ノードでは存在しない）
		if vconn, ok := video.Connection(); ok {
			vconn.SetEnabled(true)
			enabled = append(enabled, vconn)
		}
	}

	if err := ctx.Err(); err != nil {
		return SessionConfig{}, err
	}

	// 5. コミット
	if err := c.graph.CommitConfiguration(); err != nil {
		return SessionConfig{}, fmt.Errorf("%w: %w", ErrCommit, err)
	}
	committed = true

	c.log.Info().
		Str("device", device.Device).
		Str("preset", string(cfg.Preset)).
		Bool("depth", cfg.DepthEnabled).
		Bool("filtering", cfg.FilteringEnabled).
		Msg("キャプチャグラフを構成しました")

	return cfg, nil
}
