package depth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull は配信キューが満杯でフレームを破棄したことを示す
	ErrQueueFull = errors.New("frame queue full")

	// ErrLaneStopped は停止済みのレーンに配信されたことを示す
	ErrLaneStopped = errors.New("frame lane stopped")
)

// DefaultQueueSize は配信キューのデフォルト長
const DefaultQueueSize = 8

// LaneStats はフレーム配信レーンの統計
type LaneStats struct {
	Delivered  uint64 `json:"delivered"`  // キューに入ったフレーム数
	Normalized uint64 `json:"normalized"` // 正規化に成功したフレーム数
	Dropped    uint64 `json:"dropped"`    // 破棄したフレーム数
}

// LaneOptions はLaneの設定
type LaneOptions struct {
	QueueSize int
	Logger    zerolog.Logger

	// OnSample は正規化に成功したフレームごとに呼ばれる
	OnSample func(Sample)
	// OnDrop は破棄したフレームごとに呼ばれる
	OnDrop func(Header, error)
}

// Lane はフレーム配信レーン
//
// セッション制御レーンとは独立した単一ワーカーで、
// キューに入った順にフレームを正規化する。キューが満杯のときは
// 新しいフレームを破棄し、後続のフレームを止めない。
type Lane struct {
	normalizer *Normalizer
	frames     chan Frame
	log        zerolog.Logger
	onSample   func(Sample)
	onDrop     func(Header, error)

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup

	delivered  atomic.Uint64
	normalized atomic.Uint64
	dropped    atomic.Uint64
}

// NewLane は新しいLaneを作成する
func NewLane(n *Normalizer, opts LaneOptions) *Lane {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	l := &Lane{
		normalizer: n,
		frames:     make(chan Frame, size),
		log:        opts.Logger,
		onSample:   opts.OnSample,
		onDrop:     opts.OnDrop,
	}
	if l.onSample == nil {
		l.onSample = func(Sample) {}
	}
	if l.onDrop == nil {
		l.onDrop = func(Header, error) {}
	}
	return l
}

// Start はワーカーを開始する。2回目以降の呼び出しは何もしない
func (l *Lane) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started || l.closed {
		return
	}
	l.started = true

	l.wg.Add(1)
	go l.run(ctx)
}

// Deliver はフレームをキューに入れる。ブロックしない
//
// 受け付けなかったフレームはその場で Release される。
func (l *Lane) Deliver(f Frame) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.drop(f, ErrLaneStopped)
		return false
	}

	select {
	case l.frames <- f:
		l.delivered.Add(1)
		return true
	default:
		l.drop(f, ErrQueueFull)
		return false
	}
}

// Stop はワーカーを停止し、未処理のフレームを破棄する
func (l *Lane) Stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.frames)
	l.mu.Unlock()

	l.wg.Wait()

	for f := range l.frames {
		l.drop(f, ErrLaneStopped)
	}
}

// Stats は統計を返す
func (l *Lane) Stats() LaneStats {
	return LaneStats{
		Delivered:  l.delivered.Load(),
		Normalized: l.normalized.Load(),
		Dropped:    l.dropped.Load(),
	}
}

func (l *Lane) run(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-l.frames:
			if !ok {
				return
			}
			l.process(f)
		}
	}
}

// process は1フレームを正規化して報告する
func (l *Lane) process(f Frame) {
	defer f.Release()

	sample, err := l.normalizer.Normalize(f)
	if err != nil {
		l.dropped.Add(1)
		l.log.Warn().
			Err(err).
			Str("format", formatName(f.Format)).
			Time("timestamp", f.Timestamp).
			Msg("フレームを破棄しました")
		l.onDrop(f.Header, err)
		return
	}

	l.normalized.Add(1)
	l.log.Info().
		Int("bytes_per_row", f.BytesPerRow).
		Int("width", f.Width).
		Int("height", f.Height).
		Str("format", formatName(f.Format)).
		Float32("depth", sample.Depth).
		Time("timestamp", sample.Timestamp).
		Msg("深度フレーム")
	l.onSample(sample)
}

func (l *Lane) drop(f Frame, reason error) {
	f.Release()
	l.dropped.Add(1)
	l.log.Debug().Err(reason).Str("format", formatName(f.Format)).Msg("フレームを受け付けませんでした")
	l.onDrop(f.Header, reason)
}
