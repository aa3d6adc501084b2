// Package https_server 创建 gin 引擎并挂载中间件与路由
package https_server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ephemeral_chat/internal/config"
	"ephemeral_chat/internal/handler"
	"ephemeral_chat/internal/infrastructure/logger"
	"ephemeral_chat/internal/infrastructure/metrics"
	"ephemeral_chat/internal/infrastructure/middleware"
	"ephemeral_chat/internal/router"
)

// Init 创建 gin 引擎
// 顺序：日志 → 恢复 → 指标 → 安全头 → CORS → 路由
func Init(cfg *config.MainConfig, handlers *handler.Handlers) *gin.Engine {
	if cfg.Mode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	// 不使用 gin.Default()，中间件全部自己挂
	engine := gin.New()

	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery(true))
	engine.Use(metrics.HTTPMetricsMiddleware())
	engine.Use(middleware.SecureHeaders(cfg))

	// 本地 UI 可能来自任意开发端口
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	engine.Use(cors.New(corsConfig))

	router.NewRouter(handlers).RegisterRoutes(engine)
	return engine
}

// Server 包装 http.Server，支持优雅关闭
type Server struct {
	srv *http.Server
}

// NewServer 构造函数
func NewServer(cfg *config.MainConfig, engine *gin.Engine) *Server {
	return &Server{srv: &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start 非阻塞启动，监听失败时写日志
func (s *Server) Start() {
	go func() {
		zap.L().Info("http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("http server failed", zap.Error(err))
		}
	}()
}

// Shutdown 停止接收新请求并等待进行中的请求结束
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
