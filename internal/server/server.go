package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"depthcap/internal/capture"
	"depthcap/internal/config"
	"depthcap/internal/depth"
)

// SessionView はサーバーが参照するセッションの読み取り専用ビュー
type SessionView interface {
	ID() string
	State() capture.State
	Config() (capture.SessionConfig, bool)
	FrameStats() depth.LaneStats
}

// Options はServerの依存関係
type Options struct {
	Session  SessionView
	Samples  *depth.SampleStore
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	httpServer *http.Server
	router     *gin.Engine
	log        zerolog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config: cfg,
		router: router,
		log:    opts.Logger,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	h := &handler{session: opts.Session, samples: opts.Samples}
	s.setupRoutes(h, opts.Gatherer)
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes(h *handler, gatherer prometheus.Gatherer) {
	// ヘルスチェックエンドポイント
	s.router.GET("/health", h.health)

	// APIエンドポイント
	api := s.router.Group("/api")
	api.GET("/status", h.status)
	api.GET("/sample", h.sample)

	if gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr は実際にリッスンしているアドレスを返す（起動前は nil）
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start はサーバーを起動し、ctx がキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}

	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()

	// シャットダウン用のチャンネル
	serveErr := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.log.Info().Str("addr", listener.Addr().String()).Msg("HTTPサーバーを起動しています")
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("サーバーの実行に失敗: %w", err)
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			return err
		}
		return nil
	}

	// グレースフルシャットダウン
	if err := s.Shutdown(); err != nil {
		return err
	}
	<-serveErr
	return nil
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.log.Info().Msg("サーバーをシャットダウンしています")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}
	return nil
}
