// Package cmd は depthcap のコマンドラインを実装する
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"depthcap/internal/config"
	dclog "depthcap/internal/log"
)

// NewRootCmd はルートコマンドを作成する
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "depthcap",
		Short: "深度カメラのキャプチャハーネス",
		Long: `depthcap は深度対応カメラのキャプチャセッションを構成し、
届いた深度フレームを Depth32 に正規化して診断用に記録します。

カメラの利用許可の解決、デバイスの選択、キャプチャグラフの構成、
フレームの配信をそれぞれ独立したレーンで実行します。`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env があれば読み込む（エラーは無視）
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "設定ファイル (YAML)")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		dclog.Configure(dclog.Config{
			Level:  cfg.Log.Level,
			Output: cmd.ErrOrStderr(),
			Pretty: cfg.Log.Pretty,
		})
		return cfg, nil
	}

	cmd.AddCommand(newRunCmd(load))
	cmd.AddCommand(newDevicesCmd(load))

	return cmd
}

type configLoader func(cmd *cobra.Command) (*config.Config, error)
