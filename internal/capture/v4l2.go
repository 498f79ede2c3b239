package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"depthcap/internal/camera"
	"depthcap/internal/depth"
)

// V4L2Options はV4L2グラフの設定
type V4L2Options struct {
	Width  int
	Height int
	FPS    int
	// FilterControl は深度フィルタリングを切り替えるV4L2コントロール名（空なら非対応）
	FilterControl string
	Logger        zerolog.Logger
}

// presetSizes はプリセットごとの解像度
var presetSizes = map[Preset][2]int{
	PresetPhoto:  {1280, 720},
	PresetHigh:   {1280, 720},
	PresetMedium: {848, 480},
	PresetLow:    {424, 240},
	PresetVGA:    {640, 480},
}

type v4l2Connection struct {
	mu      sync.Mutex
	enabled bool
}

func (c *v4l2Connection) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

func (c *v4l2Connection) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

type v4l2Output struct {
	conn *v4l2Connection
}

func (o *v4l2Output) Connection() (Connection, bool) {
	if o.conn == nil {
		return nil, false
	}
	return o.conn, true
}

type v4l2DepthOutput struct {
	v4l2Output
	graph *V4L2Graph
}

// SetFilteringEnabled は v4l2-ctl --set-ctrl でフィルタリングを切り替える
func (o *v4l2DepthOutput) SetFilteringEnabled(enabled bool) error {
	return o.graph.setFiltering(enabled)
}

// V4L2Graph はLinuxの深度ノードから Z16 フレームを読むキャプチャグラフ
//
// v4l2-ctl の --stream-to=- で生フレームを標準出力に流し、
// ミリメートル単位の Z16 を Depth16（メートル）に変換して配信する。
type V4L2Graph struct {
	opts V4L2Options
	log  zerolog.Logger

	mu        sync.Mutex
	width     int
	height    int
	input     *camera.DeviceDescriptor
	depthOut  *v4l2DepthOutput
	video     *v4l2Output
	staged    bool
	committed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewV4L2Graph は新しいV4L2Graphを作成する
func NewV4L2Graph(opts V4L2Options) *V4L2Graph {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	return &V4L2Graph{
		opts:   opts,
		log:    opts.Logger,
		width:  opts.Width,
		height: opts.Height,
	}
}

// BeginConfiguration は構成トランザクションを開始する
func (g *V4L2Graph) BeginConfiguration() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.staged = true
}

// SetPreset はプリセットの解像度を使う（明示的な幅・高さが優先）
func (g *V4L2Graph) SetPreset(p Preset) error {
	size, ok := presetSizes[p]
	if !ok {
		return fmt.Errorf("unknown preset %q", p)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.opts.Width <= 0 || g.opts.Height <= 0 {
		g.width, g.height = size[0], size[1]
	}
	return nil
}

// AddInput はデバイスノードを入力として使う
func (g *V4L2Graph) AddInput(device camera.DeviceDescriptor) error {
	if device.Device == "" {
		return errors.New("device path is empty")
	}
	file, err := os.OpenFile(device.Device, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("デバイスを開けません: %w", err)
	}
	_ = file.Close()

	g.mu.Lock()
	defer g.mu.Unlock()
	d := device
	g.input = &d
	return nil
}

// AddVideoOutput はカラー出力を接続する（深度専用ノードでは接続なし）
func (g *V4L2Graph) AddVideoOutput() (Output, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.input == nil {
		return nil, errors.New("no input attached")
	}
	g.video = &v4l2Output{}
	if g.input.SupportsVideo {
		g.video.conn = &v4l2Connection{}
	}
	return g.video, nil
}

// AddDepthOutput は深度出力を接続する
func (g *V4L2Graph) AddDepthOutput() (DepthOutput, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.input == nil {
		return nil, errors.New("no input attached")
	}
	if !g.input.SupportsDepth {
		return nil, fmt.Errorf("%s は深度フォーマットを持っていません", g.input.Device)
	}
	g.depthOut = &v4l2DepthOutput{v4l2Output: v4l2Output{conn: &v4l2Connection{}}, graph: g}
	return g.depthOut, nil
}

// CommitConfiguration は構成を確定する
func (g *V4L2Graph) CommitConfiguration() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.width <= 0 || g.height <= 0 {
		return errors.New("resolution is not set")
	}
	g.staged = false
	g.committed = true
	return nil
}

// AbandonConfiguration は構成を取り消す
func (g *V4L2Graph) AbandonConfiguration() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.staged {
		return
	}
	g.resetLocked()
}

func (g *V4L2Graph) resetLocked() {
	g.input = nil
	g.video = nil
	g.depthOut = nil
	g.staged = false
	g.committed = false
	g.width, g.height = g.opts.Width, g.opts.Height
}

// setFiltering はフィルタリング用のコントロールを設定する
func (g *V4L2Graph) setFiltering(enabled bool) error {
	g.mu.Lock()
	device := ""
	if g.input != nil {
		device = g.input.Device
	}
	g.mu.Unlock()

	if g.opts.FilterControl == "" {
		return ErrFilteringUnsupported
	}

	value := 0
	if enabled {
		value = 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--set-ctrl", fmt.Sprintf("%s=%d", g.opts.FilterControl, value))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("コントロール %s の設定に失敗: %w", g.opts.FilterControl, err)
	}
	return nil
}

// streamArgs は v4l2-ctl のストリーミング引数を返す
func streamArgs(device string, width, height, fps int) []string {
	return []string{
		"--device", device,
		fmt.Sprintf("--set-fmt-video=width=%d,height=%d,pixelformat=Z16", width, height),
		"--set-parm", strconv.Itoa(fps),
		"--stream-mmap",
		"--stream-count=0",
		"--stream-to=-",
	}
}

// StartRunning は v4l2-ctl を起動してフレームの読み取りを開始する
func (g *V4L2Graph) StartRunning(ctx context.Context, sink FrameSink) error {
	g.mu.Lock()
	if !g.committed || g.input == nil {
		g.mu.Unlock()
		return errNotConfigured
	}
	device, width, height := g.input.Device, g.width, g.height
	g.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, "v4l2-ctl", streamArgs(device, width, height, g.opts.FPS)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("v4l2-ctlの起動に失敗: %w", err)
	}

	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()

	stderrDone := make(chan struct{})
	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			g.log.Debug().Str("device", device).Msg(scanner.Text())
		}
	}()
	go func() {
		defer g.wg.Done()
		err := readZ16Frames(runCtx, stdout, width, height, sink)
		logStreamEnd(runCtx, g.log, device, err)
		cancel()
		<-stderrDone
		_ = cmd.Wait() // キャンセル時のエラーは無視
	}()

	g.log.Info().Str("device", device).Int("width", width).Int("height", height).Msg("V4L2ストリームを開始しました")
	return nil
}

// StopRunning はストリームを止めて構成を解放する
func (g *V4L2Graph) StopRunning() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, out := range []*v4l2Output{g.video, outputOf(g.depthOut)} {
		if out != nil && out.conn != nil {
			out.conn.SetEnabled(false)
		}
	}
	g.resetLocked()
}

func outputOf(d *v4l2DepthOutput) *v4l2Output {
	if d == nil {
		return nil
	}
	return &d.v4l2Output
}

// logStreamEnd は停止要求以外でストリームが終わったことを記録する
//
// セッションは Running のまま復旧しないので、以降フレームが届かないことを警告する。
func logStreamEnd(ctx context.Context, logger zerolog.Logger, device string, err error) {
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("device", device).Msg("フレームの読み取りに失敗しました。以降フレームは届きません")
		return
	}
	logger.Warn().Str("device", device).Msg("v4l2-ctl のストリームが終了しました。以降フレームは届きません")
}

// readZ16Frames は生の Z16 フレームを読み続けて sink に渡す
func readZ16Frames(ctx context.Context, r io.Reader, width, height int, sink FrameSink) error {
	frameSize := width * height * 2
	raw := make([]byte, frameSize)

	for {
		if _, err := io.ReadFull(r, raw); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		data := make([]byte, frameSize)
		Z16ToDepth16(data, raw)
		sink.Deliver(depth.NewFrame(depth.Header{
			Format:      depth.Depth16{},
			Width:       width,
			Height:      height,
			BytesPerRow: width * 2,
			Timestamp:   time.Now(),
		}, depth.NewMemoryBuffer(data), nil))
	}
}

// Z16ToDepth16 はミリメートル単位の Z16 を Depth16（半精度メートル）に変換する
// 0（無効画素）は 0 のまま
func Z16ToDepth16(dst, src []byte) {
	for i := 0; i+1 < len(src) && i+1 < len(dst); i += 2 {
		mm := binary.LittleEndian.Uint16(src[i:])
		depth.EncodeDepth16(dst[i:], float32(mm)/1000)
	}
}
