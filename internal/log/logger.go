// Package log はzerologベースの構造化ログを提供する
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config はロガーの設定
type Config struct {
	Level   string    // ログレベル ("debug", "info" など)
	Output  io.Writer // 出力先 (デフォルト: os.Stderr)
	Service string    // 全ログに付与するサービス名
	Pretty  bool      // 人間向けのコンソール出力にする
}

var (
	mu   sync.RWMutex
	once sync.Once
	base zerolog.Logger
)

// Configure はベースロガーを一度だけ初期化する
func Configure(cfg Config) {
	once.Do(func() {
		setBase(cfg)
	})
}

// Reconfigure はベースロガーを差し替える（CLI起動時とテスト用）
func Reconfigure(cfg Config) {
	once.Do(func() {})
	setBase(cfg)
}

func setBase(cfg Config) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	} else if env := os.Getenv("LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	if cfg.Pretty {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.TimeOnly}
	}

	service := cfg.Service
	if service == "" {
		service = "depthcap"
	}

	l := zerolog.New(writer).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()

	mu.Lock()
	base = l
	mu.Unlock()
}

// Base は設定済みのベースロガーを返す
func Base() zerolog.Logger {
	Configure(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent はコンポーネント名を付与した子ロガーを返す
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

// Nop は何も出力しないロガーを返す
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
