package capture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"depthcap/internal/camera"
	"depthcap/internal/depth"
	"depthcap/internal/permission"
)

// Host はセッションを所有する外部のシェル
type Host interface {
	// SessionFailed は Unauthorized / ConfigurationFailed で一度だけ呼ばれる
	//
	// 制御レーン上で呼ばれる。この中から停止するときは ctx をそのまま
	// Session.Stop に渡すと、レーンを待たずにその場で停止する。
	SessionFailed(ctx context.Context, err *TerminalError)
}

// HostFunc は関数をHostとして使うためのアダプター
type HostFunc func(ctx context.Context, err *TerminalError)

// SessionFailed は f を呼ぶ
func (f HostFunc) SessionFailed(ctx context.Context, err *TerminalError) { f(ctx, err) }

// Observer はセッションのイベントを受け取る
type Observer interface {
	StateChanged(from, to State)
	FrameNormalized(sample depth.Sample)
	FrameDropped(header depth.Header, err error)
}

// Dependencies はセッションが使うコンポーネント
type Dependencies struct {
	Gate     *permission.Gate
	Selector *camera.Selector
	Graph    Graph
	Host     Host
	Logger   zerolog.Logger
}

// Options はセッションの設定
type Options struct {
	Preferred    []camera.DeviceType
	MediaKind    camera.MediaKind
	Position     camera.Position
	Preset       Preset
	DepthEnabled bool
	Filtering    bool
	SamplePoint  depth.Point
	QueueSize    int
	Observers    []Observer
}

// Session はキャプチャセッションの状態機械
//
// 状態を変更するのは制御レーン上のタスクだけで、Start と Stop は
// タスクを投入するだけ。フレームの正規化は別のフレーム配信レーンで行う。
type Session struct {
	id           string
	gate         *permission.Gate
	selector     *camera.Selector
	graph        Graph
	configurator *Configurator
	host         Host
	opts         Options
	log          zerolog.Logger

	control *controlLane
	frames  *depth.Lane

	// runCtx は構成中の処理と配信を Stop でキャンセルするためのもの
	runCtx context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	starting bool
	config   *SessionConfig
	changed  chan struct{}
}

// NewSession は新しいSessionを作成する
func NewSession(deps Dependencies, opts Options) *Session {
	id := uuid.NewString()
	logger := deps.Logger.With().Str("session_id", id).Logger()

	if opts.MediaKind == "" {
		opts.MediaKind = camera.MediaVideo
	}
	if opts.Preferred == nil {
		opts.Preferred = camera.DefaultPreference
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:           id,
		gate:         deps.Gate,
		selector:     deps.Selector,
		graph:        deps.Graph,
		configurator: NewConfigurator(deps.Graph, logger),
		host:         deps.Host,
		opts:         opts,
		log:          logger,
		control:      newControlLane(),
		runCtx:       runCtx,
		cancel:       cancel,
		state:        StateIdle,
		changed:      make(chan struct{}),
	}

	s.frames = depth.NewLane(depth.NewNormalizer(opts.SamplePoint), depth.LaneOptions{
		QueueSize: opts.QueueSize,
		Logger:    logger.With().Str("lane", "frames").Logger(),
		OnSample: func(sample depth.Sample) {
			for _, o := range s.opts.Observers {
				o.FrameNormalized(sample)
			}
		},
		OnDrop: func(h depth.Header, err error) {
			for _, o := range s.opts.Observers {
				o.FrameDropped(h, err)
			}
		},
	})

	return s
}

// ID はセッションIDを返す
func (s *Session) ID() string {
	return s.id
}

// State は現在の状態を返す
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config はコミットされた構成を返す
func (s *Session) Config() (SessionConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return SessionConfig{}, false
	}
	return *s.config, true
}

// FrameStats はフレーム配信レーンの統計を返す
func (s *Session) FrameStats() depth.LaneStats {
	return s.frames.Stats()
}

// Start はセッションを開始する
//
// Idle 以外の状態では何もしない。Configuring への遷移と許可の解決・構成・
// 配信開始は制御レーンで非同期に行われ、呼び出し元はブロックしない。
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle || s.starting {
		state := s.state
		s.mu.Unlock()
		s.log.Debug().Str("state", string(state)).Msg("セッションは開始済みのため start を無視します")
		return nil
	}
	s.starting = true
	s.mu.Unlock()

	if _, err := s.control.submit(ctx, s.configure); err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		return fmt.Errorf("構成タスクの投入に失敗: %w", err)
	}
	return nil
}

// Stop は構成中の処理や配信をキャンセルして Stopped に遷移し、完了を待つ
//
// どの状態から呼んでも安全。終端状態では資源の後始末だけを行う。
// Host.SessionFailed に渡された ctx で呼ぶと、制御レーン上でその場で停止する。
func (s *Session) Stop(ctx context.Context) error {
	s.cancel()

	if s.control.owns(ctx) {
		s.stop()
		s.control.shutdown()
		return nil
	}

	done, err := s.control.submit(ctx, s.stop)
	if errors.Is(err, ErrSessionClosed) {
		s.control.close()
		return nil
	}
	if err != nil {
		return fmt.Errorf("停止タスクの投入に失敗: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.control.close()
	return nil
}

// WaitFor は指定したいずれかの状態になるまで待つ
func (s *Session) WaitFor(ctx context.Context, states ...State) (State, error) {
	for {
		s.mu.Lock()
		state, changed := s.state, s.changed
		s.mu.Unlock()

		if slices.Contains(states, state) {
			return state, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// configure は制御レーン上で許可の解決から配信開始までを行う
func (s *Session) configure() {
	ctx := s.runCtx

	s.mu.Lock()
	s.starting = false
	if s.state != StateIdle {
		// 投入後、実行前に停止された
		s.mu.Unlock()
		return
	}
	err := s.transitionLocked(StateConfiguring)
	s.mu.Unlock()
	if err != nil {
		s.log.Error().Err(err).Msg("Configuring に遷移できません")
		return
	}

	authz, err := s.gate.RequestAccess(ctx)
	if err != nil {
		s.log.Info().Err(err).Msg("許可の待機中に停止されました")
		return
	}
	if authz != permission.StateAuthorized {
		s.fail(StateUnauthorized, permission.ErrPermissionDenied)
		return
	}

	device, err := s.selector.SelectDevice(ctx, s.opts.Preferred, s.opts.MediaKind, s.opts.Position)
	if err != nil {
		s.failUnlessCancelled(ctx, err)
		return
	}

	cfg, err := s.configurator.Configure(ctx, device, ConfigureOptions{
		Preset:       s.opts.Preset,
		DepthEnabled: s.opts.DepthEnabled,
		Filtering:    s.opts.Filtering,
	})
	if err != nil {
		s.failUnlessCancelled(ctx, err)
		return
	}

	s.mu.Lock()
	s.config = &cfg
	err = s.transitionLocked(StateRunning)
	s.mu.Unlock()
	if err != nil {
		s.log.Error().Err(err).Msg("Running に遷移できません")
		return
	}

	s.frames.Start(ctx)
	if err := s.graph.StartRunning(ctx, s.frames); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.frames.Stop()
		s.graph.StopRunning()
		s.fail(StateConfigurationFailed, fmt.Errorf("キャプチャの開始に失敗: %w", err))
		return
	}

	s.log.Info().Str("device", device.Device).Msg("キャプチャを開始しました")
}

// stop は制御レーン上で資源を解放して Stopped に遷移する
func (s *Session) stop() {
	state := s.State()
	if state.Terminal() {
		s.frames.Stop()
		return
	}

	if state == StateRunning {
		s.graph.StopRunning()
	}
	s.frames.Stop()

	s.mu.Lock()
	err := s.transitionLocked(StateStopped)
	s.mu.Unlock()
	if err != nil {
		s.log.Error().Err(err).Msg("Stopped に遷移できません")
		return
	}
	s.log.Info().Str("from", string(state)).Msg("セッションを停止しました")
}

func (s *Session) failUnlessCancelled(ctx context.Context, err error) {
	if ctx.Err() != nil {
		s.log.Info().Err(err).Msg("構成中に停止されました")
		return
	}
	s.fail(StateConfigurationFailed, err)
}

// fail は失敗状態に遷移し、ホストに一度だけ通知する
func (s *Session) fail(state State, cause error) {
	s.mu.Lock()
	err := s.transitionLocked(state)
	s.mu.Unlock()
	if err != nil {
		s.log.Error().Err(err).Msg("失敗状態に遷移できません")
		return
	}

	terr := &TerminalError{State: state, Err: cause}
	s.log.Error().Err(cause).Str("state", string(state)).Msg("セッションが終端状態になりました")
	if s.host != nil {
		s.host.SessionFailed(s.control.withLane(context.Background()), terr)
	}
}

// transitionLocked は遷移表に従って状態を変更する（ロック済み前提）
func (s *Session) transitionLocked(to State) error {
	from := s.state
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	s.state = to
	close(s.changed)
	s.changed = make(chan struct{})

	s.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("状態遷移")
	for _, o := range s.opts.Observers {
		o.StateChanged(from, to)
	}
	return nil
}
