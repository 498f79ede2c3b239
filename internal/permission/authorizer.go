package permission

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// StaticAuthorizer は固定の状態を返すAuthorizer
type StaticAuthorizer struct {
	state AuthorizationState
}

// NewStaticAuthorizer は新しいStaticAuthorizerを作成する
func NewStaticAuthorizer(state AuthorizationState) *StaticAuthorizer {
	return &StaticAuthorizer{state: state}
}

// Status は固定の状態を返す
func (a *StaticAuthorizer) Status(_ context.Context) AuthorizationState {
	return a.state
}

// Request は固定の状態が Authorized なら許可する
func (a *StaticAuthorizer) Request(_ context.Context) (bool, error) {
	return a.state == StateAuthorized, nil
}

// PromptAuthorizer は外部から応答されるまで未決定のままのAuthorizer
type PromptAuthorizer struct {
	mu       sync.Mutex
	decided  bool
	granted  bool
	answer   chan struct{}
	once     sync.Once
	asked    chan struct{}
	askOnce  sync.Once
	requests int
}

// NewPromptAuthorizer は新しいPromptAuthorizerを作成する
func NewPromptAuthorizer() *PromptAuthorizer {
	return &PromptAuthorizer{
		answer: make(chan struct{}),
		asked:  make(chan struct{}),
	}
}

// Status は応答前なら NotDetermined を返す
func (a *PromptAuthorizer) Status(_ context.Context) AuthorizationState {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case !a.decided:
		return StateNotDetermined
	case a.granted:
		return StateAuthorized
	default:
		return StateDenied
	}
}

// Request は Resolve が呼ばれるまでブロックする
func (a *PromptAuthorizer) Request(ctx context.Context) (bool, error) {
	a.mu.Lock()
	a.requests++
	a.mu.Unlock()
	a.askOnce.Do(func() { close(a.asked) })

	select {
	case <-a.answer:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve はプロンプトに応答する。2回目以降は無視される
func (a *PromptAuthorizer) Resolve(granted bool) {
	a.once.Do(func() {
		a.mu.Lock()
		a.decided = true
		a.granted = granted
		a.mu.Unlock()
		close(a.answer)
	})
}

// Asked はプロンプトが表示されたときに閉じるチャンネルを返す
func (a *PromptAuthorizer) Asked() <-chan struct{} {
	return a.asked
}

// Requests はプロンプトが表示された回数を返す
func (a *PromptAuthorizer) Requests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests
}

// DeviceAuthorizer はビデオデバイスノードを開けるかどうかで許可を判定する
//
// Linux では許可のプロンプトは存在しないため、状態は常に確定している。
// デバイスが1つもない場合は許可として扱い、デバイス選択で失敗させる。
type DeviceAuthorizer struct {
	pattern string
}

// NewDeviceAuthorizer は新しいDeviceAuthorizerを作成する
func NewDeviceAuthorizer(pattern string) *DeviceAuthorizer {
	if pattern == "" {
		pattern = "/dev/video*"
	}
	return &DeviceAuthorizer{pattern: pattern}
}

// Status はデバイスノードの読み取り権限から状態を判定する
func (a *DeviceAuthorizer) Status(_ context.Context) AuthorizationState {
	matches, err := filepath.Glob(a.pattern)
	if err != nil || len(matches) == 0 {
		return StateAuthorized
	}

	denied := 0
	for _, device := range matches {
		file, err := os.OpenFile(device, os.O_RDONLY, 0)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				denied++
			}
			continue
		}
		_ = file.Close()
		return StateAuthorized
	}

	if denied > 0 {
		return StateDenied
	}
	return StateAuthorized
}

// Request は Status と同じ判定を行う
func (a *DeviceAuthorizer) Request(ctx context.Context) (bool, error) {
	return a.Status(ctx) == StateAuthorized, nil
}
