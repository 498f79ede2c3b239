package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"depthcap/internal/camera"
	"depthcap/internal/capture"
	"depthcap/internal/config"
	"depthcap/internal/permission"
)

// platform はプラットフォームごとのコンポーネント
type platform struct {
	discovery  camera.Discovery
	graph      capture.Graph
	authorizer permission.Authorizer
}

// syntheticDevice は合成プラットフォームが提示するデバイス
func syntheticDevice() camera.DeviceDescriptor {
	return camera.DeviceDescriptor{
		ID:            uuid.NewString(),
		Name:          "合成デュアルカメラ",
		Device:        "synthetic://dual",
		Type:          camera.TypeDualCamera,
		Position:      camera.PositionBack,
		SupportsVideo: true,
		SupportsDepth: true,
		Formats:       []string{"Z16", "YUYV"},
		Resolutions:   []camera.Resolution{{Width: 64, Height: 48}},
	}
}

// newPlatform は設定からプラットフォームを構築する
func newPlatform(cfg *config.Config, logger zerolog.Logger) (*platform, error) {
	p := &platform{}

	switch cfg.Platform {
	case config.PlatformSynthetic:
		fps := cfg.Camera.FPS
		if fps <= 0 {
			fps = 30
		}
		p.discovery = camera.NewMockDiscovery(syntheticDevice())
		p.graph = capture.NewSyntheticGraph(capture.SyntheticOptions{
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			Interval: time.Second / time.Duration(fps),
		})
	case config.PlatformV4L2:
		p.discovery = camera.NewLinuxDiscovery()
		p.graph = capture.NewV4L2Graph(capture.V4L2Options{
			Width:         cfg.Camera.Width,
			Height:        cfg.Camera.Height,
			FPS:           cfg.Camera.FPS,
			FilterControl: cfg.Camera.FilterControl,
			Logger:        logger.With().Str("component", "v4l2").Logger(),
		})
	default:
		return nil, fmt.Errorf("無効なプラットフォーム: %q", cfg.Platform)
	}

	switch cfg.Permission.Mode {
	case config.PermissionGranted:
		p.authorizer = permission.NewStaticAuthorizer(permission.StateAuthorized)
	case config.PermissionDenied:
		p.authorizer = permission.NewStaticAuthorizer(permission.StateDenied)
	case config.PermissionPrompt:
		p.authorizer = permission.NewPromptAuthorizer()
	default:
		p.authorizer = permission.NewDeviceAuthorizer("")
	}

	return p, nil
}

// answerPrompt はプロンプトが表示されたら in から y/N を読んで応答する
func answerPrompt(ctx context.Context, auth *permission.PromptAuthorizer, in io.Reader, out io.Writer) {
	select {
	case <-auth.Asked():
	case <-ctx.Done():
		return
	}

	fmt.Fprint(out, "カメラの使用を許可しますか? [y/N]: ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		auth.Resolve(true)
	default:
		auth.Resolve(false)
	}
}
