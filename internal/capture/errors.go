package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrInputAttach はキャプチャグラフがデバイス入力を拒否したことを示す
	ErrInputAttach = errors.New("input attach error")

	// ErrOutputAttach はキャプチャグラフが出力を拒否したことを示す
	ErrOutputAttach = errors.New("output attach error")

	// ErrNoConnection は出力の配信接続が存在しないことを示す
	ErrNoConnection = errors.New("no output connection")

	// ErrCommit は構成のコミットに失敗したことを示す
	ErrCommit = errors.New("configuration commit error")

	// ErrFilteringUnsupported は深度フィルタリングが使えないことを示す（致命的ではない）
	ErrFilteringUnsupported = errors.New("depth filtering unsupported")

	// ErrInvalidTransition は許可されていない状態遷移
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrSessionClosed は停止済みセッションへの操作
	ErrSessionClosed = errors.New("session closed")
)

// TerminalError はホストに通知される終端状態とその原因
type TerminalError struct {
	State State
	Err   error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("session %s: %v", e.State, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}
