package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"depthcap/internal/camera"
	"depthcap/internal/capture"
	"depthcap/internal/config"
	"depthcap/internal/depth"
	dclog "depthcap/internal/log"
	"depthcap/internal/metrics"
	"depthcap/internal/permission"
	"depthcap/internal/server"
)

const stopTimeout = 5 * time.Second

func newRunCmd(load configLoader) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "キャプチャセッションを実行する",
		Long: `許可を解決してデバイスを選択し、キャプチャグラフを構成して
深度フレームの正規化を開始します。

Ctrl+C で停止します。セッションが Unauthorized または
ConfigurationFailed になった場合は 0 以外で終了します。`,
		Example: `  # 合成カメラで実行
  depthcap run

  # 設定ファイルを指定して10秒だけ実行
  depthcap run --config depthcap.yaml --duration 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			return runSession(ctx, cmd, cfg)
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "指定時間後に停止する（0 なら無期限）")

	return cmd
}

// runSession はセッションと診断サーバーを実行し、停止または失敗まで待つ
func runSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	logger := dclog.WithComponent("capture")

	p, err := newPlatform(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	samples := depth.NewSampleStore()

	// ホストへの通知は一度だけ
	failures := make(chan *capture.TerminalError, 1)

	session := capture.NewSession(capture.Dependencies{
		Gate:     permission.NewGate(p.authorizer, dclog.WithComponent("permission")),
		Selector: camera.NewSelector(p.discovery, dclog.WithComponent("camera")),
		Graph:    p.graph,
		Host: capture.HostFunc(func(_ context.Context, err *capture.TerminalError) {
			failures <- err
		}),
		Logger: logger,
	}, capture.Options{
		Preferred:    cfg.PreferredTypes(),
		MediaKind:    cfg.MediaKind(),
		Position:     camera.Position(cfg.Camera.Position),
		Preset:       capture.Preset(cfg.Camera.Preset),
		DepthEnabled: cfg.Camera.DepthEnabled,
		Filtering:    cfg.Camera.FilteringEnabled,
		SamplePoint:  cfg.SamplePoint(),
		QueueSize:    cfg.Depth.QueueSize,
		Observers: []capture.Observer{
			metrics.NewCollector(reg),
			capture.SampleObserver{Store: samples},
		},
	})

	g, gctx := errgroup.WithContext(ctx)

	if prompt, ok := p.authorizer.(*permission.PromptAuthorizer); ok {
		go answerPrompt(gctx, prompt, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	if cfg.Server.Enabled {
		srv := server.New(cfg, server.Options{
			Session:  session,
			Samples:  samples,
			Gatherer: reg,
			Logger:   dclog.WithComponent("server"),
		})
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	g.Go(func() error {
		if err := session.Start(gctx); err != nil {
			return err
		}
		select {
		case <-gctx.Done():
			return nil
		case terr := <-failures:
			return terr
		}
	})

	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := session.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("セッションの停止に失敗しました")
		runErr = errors.Join(runErr, err)
	}

	stats := session.FrameStats()
	logger.Info().
		Str("session_id", session.ID()).
		Str("state", string(session.State())).
		Uint64("normalized", stats.Normalized).
		Uint64("dropped", stats.Dropped).
		Msg("セッションを終了しました")

	return runErr
}
