package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"depthcap/internal/camera"
	"depthcap/internal/depth"
)

// Step は合成グラフで故障を注入できる操作
type Step string

const (
	StepPreset         Step = "preset"
	StepAddInput       Step = "add_input"
	StepAddVideoOutput Step = "add_video_output"
	StepAddDepthOutput Step = "add_depth_output"
	StepFiltering      Step = "filtering"
	StepConnection     Step = "connection"
	StepCommit         Step = "commit"
	StepStart          Step = "start"
)

var errNotConfigured = errors.New("capture graph is not configured")

// SyntheticOptions は合成グラフの設定
type SyntheticOptions struct {
	Format     depth.PixelFormat // 出力する深度フォーマット
	Width      int
	Height     int
	Padding    int           // 行末のパディング（バイト）
	Interval   time.Duration // フレーム間隔。0 なら Emit でのみ出力する
	StartDelay time.Duration // StartRunning のブロック時間

	// Scene は座標とフレーム番号から深度 (m) を返す
	Scene func(x, y int, seq uint64) float32
}

// DefaultScene は1.5m先の平面にゆっくりした揺らぎを加えたシーン
func DefaultScene(x, y int, seq uint64) float32 {
	return 1.5 + 0.25*float32(math.Sin(float64(seq)/30+float64(x+y)/100))
}

type syntheticConnection struct {
	mu      sync.Mutex
	enabled bool
}

func (c *syntheticConnection) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

func (c *syntheticConnection) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

type syntheticOutput struct {
	conn *syntheticConnection
}

func (o *syntheticOutput) Connection() (Connection, bool) {
	if o.conn == nil {
		return nil, false
	}
	return o.conn, true
}

type syntheticDepthOutput struct {
	syntheticOutput
	graph     *SyntheticGraph
	filtering atomic.Bool
}

func (o *syntheticDepthOutput) SetFilteringEnabled(enabled bool) error {
	if err := o.graph.fault(StepFiltering); err != nil {
		return err
	}
	o.filtering.Store(enabled)
	return nil
}

// SyntheticGraph はハードウェアなしで動くキャプチャグラフ
//
// 各ステップに故障を注入でき、テストと `platform: synthetic` で使う。
type SyntheticGraph struct {
	opts SyntheticOptions

	mu          sync.Mutex
	faults      map[Step]error
	lockErrors  map[uint64]error
	preset      Preset
	input       *camera.DeviceDescriptor
	video       *syntheticOutput
	depthOut    *syntheticDepthOutput
	connections []*syntheticConnection
	snapshot    *graphSnapshot
	committed   bool
	running     bool
	sink        FrameSink
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	startCalls  int

	seq      atomic.Uint64
	released atomic.Uint64
}

type graphSnapshot struct {
	preset   Preset
	input    *camera.DeviceDescriptor
	video    *syntheticOutput
	depthOut *syntheticDepthOutput
}

// NewSyntheticGraph は新しいSyntheticGraphを作成する
func NewSyntheticGraph(opts SyntheticOptions) *SyntheticGraph {
	if opts.Format == nil {
		opts.Format = depth.Depth16{}
	}
	if opts.Width <= 0 {
		opts.Width = 64
	}
	if opts.Height <= 0 {
		opts.Height = 48
	}
	if opts.Scene == nil {
		opts.Scene = DefaultScene
	}
	return &SyntheticGraph{
		opts:       opts,
		faults:     make(map[Step]error),
		lockErrors: make(map[uint64]error),
	}
}

// Fail は指定したステップで err を返すようにする（nil で解除）
func (g *SyntheticGraph) Fail(step Step, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.faults, step)
		return
	}
	g.faults[step] = err
}

// FailFrameLock は seq 番目（1始まり）のフレームのバッファロックを失敗させる
func (g *SyntheticGraph) FailFrameLock(seq uint64, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lockErrors[seq] = err
}

func (g *SyntheticGraph) fault(step Step) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.faults[step]
}

// BeginConfiguration は構成トランザクションを開始する
func (g *SyntheticGraph) BeginConfiguration() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapshot = &graphSnapshot{preset: g.preset, input: g.input, video: g.video, depthOut: g.depthOut}
}

// SetPreset はプリセットを設定する
func (g *SyntheticGraph) SetPreset(p Preset) error {
	if err := g.fault(StepPreset); err != nil {
		return err
	}
	if !p.Valid() {
		return fmt.Errorf("unknown preset %q", p)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.preset = p
	return nil
}

// AddInput はデバイスを入力として接続する
func (g *SyntheticGraph) AddInput(device camera.DeviceDescriptor) error {
	if err := g.fault(StepAddInput); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.input != nil {
		return fmt.Errorf("input already attached: %s", g.input.ID)
	}
	d := device
	g.input = &d
	return nil
}

// AddVideoOutput はカラー出力を接続する
func (g *SyntheticGraph) AddVideoOutput() (Output, error) {
	if err := g.fault(StepAddVideoOutput); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.input == nil {
		return nil, errors.New("no input attached")
	}
	g.video = &syntheticOutput{conn: g.newConnectionLocked(g.input.SupportsVideo)}
	return g.video, nil
}

// AddDepthOutput は深度出力を接続する
func (g *SyntheticGraph) AddDepthOutput() (DepthOutput, error) {
	if err := g.fault(StepAddDepthOutput); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.input == nil {
		return nil, errors.New("no input attached")
	}
	if !g.input.SupportsDepth {
		return nil, fmt.Errorf("device %s does not support depth", g.input.ID)
	}
	conn := g.newConnectionLocked(g.faults[StepConnection] == nil)
	g.depthOut = &syntheticDepthOutput{syntheticOutput: syntheticOutput{conn: conn}, graph: g}
	return g.depthOut, nil
}

func (g *SyntheticGraph) newConnectionLocked(exists bool) *syntheticConnection {
	if !exists {
		return nil
	}
	c := &syntheticConnection{}
	g.connections = append(g.connections, c)
	return c
}

// CommitConfiguration は構成を確定する
func (g *SyntheticGraph) CommitConfiguration() error {
	if err := g.fault(StepCommit); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapshot = nil
	g.committed = true
	return nil
}

// AbandonConfiguration は Begin 以降の変更を取り消す
func (g *SyntheticGraph) AbandonConfiguration() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshot == nil {
		return
	}
	g.preset = g.snapshot.preset
	g.input = g.snapshot.input
	g.video = g.snapshot.video
	g.depthOut = g.snapshot.depthOut
	g.snapshot = nil
}

// StartRunning はフレームの配信を開始する
func (g *SyntheticGraph) StartRunning(ctx context.Context, sink FrameSink) error {
	g.mu.Lock()
	g.startCalls++
	err := g.faults[StepStart]
	committed := g.committed
	g.mu.Unlock()

	if err != nil {
		return err
	}
	if !committed {
		return errNotConfigured
	}

	if g.opts.StartDelay > 0 {
		select {
		case <-time.After(g.opts.StartDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = true
	g.sink = sink
	g.cancel = cancel

	if g.opts.Interval > 0 {
		g.wg.Add(1)
		go g.generate(runCtx)
	}
	return nil
}

// StopRunning は配信を止めて入力と出力をすべて取り外す
func (g *SyntheticGraph) StopRunning() {
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
	for _, c := range g.connections {
		c.SetEnabled(false)
	}
	g.running = false
	g.sink = nil
	g.input = nil
	g.video = nil
	g.depthOut = nil
	g.committed = false
}

func (g *SyntheticGraph) generate(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = g.Emit()
		}
	}
}

// Emit は1フレームを生成して配信する
func (g *SyntheticGraph) Emit() (bool, error) {
	g.mu.Lock()
	sink := g.sink
	running := g.running
	g.mu.Unlock()

	if !running || sink == nil {
		return false, errNotConfigured
	}

	seq := g.seq.Add(1)
	frame, err := g.render(seq)
	if err != nil {
		return false, err
	}
	return sink.Deliver(frame), nil
}

// render は Scene から1フレームを描画する
func (g *SyntheticGraph) render(seq uint64) (depth.Frame, error) {
	format := g.opts.Format
	bpp := format.BytesPerPixel()
	stride := g.opts.Width*bpp + g.opts.Padding
	data := make([]byte, stride*g.opts.Height)

	if bpp > 0 {
		for y := 0; y < g.opts.Height; y++ {
			for x := 0; x < g.opts.Width; x++ {
				off := y*stride + x*bpp
				if err := depth.Encode(format, data[off:off+bpp], g.opts.Scene(x, y, seq)); err != nil {
					return depth.Frame{}, err
				}
			}
		}
	}

	buf := depth.NewMemoryBuffer(data)
	g.mu.Lock()
	if err, ok := g.lockErrors[seq]; ok {
		buf.SetLockError(err)
	}
	g.mu.Unlock()

	return depth.NewFrame(depth.Header{
		Format:      format,
		Width:       g.opts.Width,
		Height:      g.opts.Height,
		BytesPerRow: stride,
		Timestamp:   time.Now(),
	}, buf, func() { g.released.Add(1) }), nil
}

// Connections はこれまでに作成した接続を返す
func (g *SyntheticGraph) Connections() []Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	result := make([]Connection, 0, len(g.connections))
	for _, c := range g.connections {
		result = append(result, c)
	}
	return result
}

// EnabledConnections は有効な接続の数を返す
func (g *SyntheticGraph) EnabledConnections() int {
	n := 0
	for _, c := range g.Connections() {
		if c.Enabled() {
			n++
		}
	}
	return n
}

// InputAttached は入力が接続されているかを返す
func (g *SyntheticGraph) InputAttached() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.input != nil
}

// Running は配信中かどうかを返す
func (g *SyntheticGraph) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// StartCalls は StartRunning が呼ばれた回数を返す
func (g *SyntheticGraph) StartCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startCalls
}

// Emitted は生成したフレーム数を返す
func (g *SyntheticGraph) Emitted() uint64 {
	return g.seq.Load()
}

// Released は返却されたフレーム数を返す
func (g *SyntheticGraph) Released() uint64 {
	return g.released.Load()
}
