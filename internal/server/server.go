package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"photobooth/internal/camera"
	"photobooth/internal/composite"
	"photobooth/internal/config"
	"photobooth/internal/layout"
	"photobooth/internal/logger"
	"photobooth/internal/metrics"
	"photobooth/internal/session"
)

// Deps はサーバーが使うコンポーネント
type Deps struct {
	Controller *session.Controller
	Camera     camera.Adapter
	Discovery  camera.Discovery
	Catalog    *layout.Catalog
	Builder    *composite.Builder
	Metrics    *metrics.Metrics
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	deps       Deps
	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader

	// セッションはリクエストより長く生きるのでサーバーのコンテキストで動かす
	ctx    context.Context
	cancel context.CancelFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: cfg,
		deps:   deps,
		engine: engine,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	s.setupRoutes()
	return s
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestLogger はリクエストをデバッグログに出す
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("リクエストを処理しました",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}

// Start はサーバーを起動し、ctxのキャンセルかシグナルを受けるとシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		logger.Info("HTTPサーバーを起動しています", "address", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		logger.Info("シグナルを受信しました", "signal", sig.String())
	case err := <-shutdownCh:
		_ = s.Shutdown(context.Background())
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown(context.Background())
}

// Shutdown はHTTPサーバーを止めてからセッションを破棄しカメラを解放する
//
// 何度呼んでも後片付けは1回だけ行う。
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		logger.Info("サーバーをシャットダウンしています")

		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		s.cancel()

		var errs []error
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("サーバーのシャットダウンに失敗: %w", err))
		}
		if err := s.deps.Controller.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		s.shutdownErr = errors.Join(errs...)

		if s.shutdownErr == nil {
			logger.Info("サーバーが正常にシャットダウンされました")
		}
	})
	return s.shutdownErr
}
