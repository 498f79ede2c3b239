package permission

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrPermissionDenied はカメラの利用が拒否されたことを示す
var ErrPermissionDenied = errors.New("camera permission denied")

// AuthorizationState はカメラ利用許可の状態
type AuthorizationState string

const (
	StateNotDetermined AuthorizationState = "not_determined" // まだ尋ねていない
	StateResolving     AuthorizationState = "resolving"      // プロンプトの応答待ち
	StateAuthorized    AuthorizationState = "authorized"     // 許可済み
	StateDenied        AuthorizationState = "denied"         // 拒否済み
)

// Resolved は確定済みの状態かどうかを返す
func (s AuthorizationState) Resolved() bool {
	return s == StateAuthorized || s == StateDenied
}

// Authorizer はプラットフォームの許可機構
type Authorizer interface {
	// Status は現在の許可状態を返す
	Status(ctx context.Context) AuthorizationState
	// Request はユーザーに許可を求め、決定されるまでブロックする
	Request(ctx context.Context) (bool, error)
}

// Gate はカメラ利用許可を一度だけ解決する
type Gate struct {
	authorizer Authorizer
	log        zerolog.Logger

	mu    sync.Mutex
	state AuthorizationState
	once  sync.Once
	done  chan struct{}
}

// NewGate は新しいGateを作成する
func NewGate(authorizer Authorizer, logger zerolog.Logger) *Gate {
	return &Gate{
		authorizer: authorizer,
		log:        logger,
		state:      StateNotDetermined,
		done:       make(chan struct{}),
	}
}

// State は現在の状態を返す
func (g *Gate) State() AuthorizationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// RequestAccess はカメラ利用許可を解決する
//
// 既に決定済みの場合はその結果を即座に返す。プロンプトの応答待ちには
// タイムアウトがなく、ctx がキャンセルされた場合のみ待機をやめる
// （その場合もプロンプトは継続し、結果は後から確定する）。
func (g *Gate) RequestAccess(ctx context.Context) (AuthorizationState, error) {
	g.once.Do(func() {
		switch g.authorizer.Status(ctx) {
		case StateAuthorized:
			g.resolve(StateAuthorized)
		case StateDenied:
			g.resolve(StateDenied)
		default:
			g.mu.Lock()
			g.state = StateResolving
			g.mu.Unlock()

			g.log.Info().Msg("カメラの利用許可を要求しています")
			go g.prompt()
		}
	})

	select {
	case <-g.done:
		return g.State(), nil
	case <-ctx.Done():
		return g.State(), ctx.Err()
	}
}

// prompt はプロンプトの結果を待って状態を確定する
func (g *Gate) prompt() {
	granted, err := g.authorizer.Request(context.Background())
	if err != nil {
		g.log.Warn().Err(err).Msg("許可の要求に失敗したため拒否として扱います")
		granted = false
	}
	if granted {
		g.resolve(StateAuthorized)
		return
	}
	g.resolve(StateDenied)
}

func (g *Gate) resolve(state AuthorizationState) {
	g.mu.Lock()
	g.state = state
	g.mu.Unlock()

	g.log.Info().Str("authorization", string(state)).Msg("カメラの利用許可が確定しました")
	close(g.done)
}
