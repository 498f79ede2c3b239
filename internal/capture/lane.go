package capture

import (
	"context"
	"sync"
)

// controlLane はセッションのライフサイクル操作を1つずつFIFO順に実行する
type controlLane struct {
	tasks chan func()

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newControlLane() *controlLane {
	l := &controlLane{tasks: make(chan func(), 4)}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *controlLane) run() {
	defer l.wg.Done()
	for task := range l.tasks {
		task()
	}
}

// submit はタスクを投入し、完了時に閉じるチャンネルを返す
func (l *controlLane) submit(ctx context.Context, task func()) (<-chan struct{}, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, ErrSessionClosed
	}

	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		task()
	}

	select {
	case l.tasks <- wrapped:
		return done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shutdown は新しいタスクの受付をやめる。投入済みのタスクは最後まで実行される
func (l *controlLane) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.tasks)
}

// close は shutdown したうえで投入済みのタスクが終わるまで待つ
//
// レーン上のタスクから呼んではならない（shutdown を使う）。
func (l *controlLane) close() {
	l.shutdown()
	l.wg.Wait()
}

type laneKey struct{}

// withLane は parent に「このレーンのタスク内」であることを記録する
func (l *controlLane) withLane(parent context.Context) context.Context {
	return context.WithValue(parent, laneKey{}, l)
}

// owns は ctx がこのレーンのタスク内で作られたかどうかを返す
func (l *controlLane) owns(ctx context.Context) bool {
	v, _ := ctx.Value(laneKey{}).(*controlLane)
	return v == l
}
