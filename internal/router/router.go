// Package router 注册本地 HTTP 与 WebSocket 路由
package router

import (
	"github.com/gin-gonic/gin"

	"ephemeral_chat/internal/handler"
	"ephemeral_chat/internal/infrastructure/metrics"
)

// Router 路由管理器
type Router struct {
	handlers *handler.Handlers
}

// NewRouter 构造函数
func NewRouter(handlers *handler.Handlers) *Router {
	return &Router{handlers: handlers}
}

// RegisterRoutes 按模块注册全部路由
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	r.GET("/metrics", metrics.Handler())
	r.GET("/healthz", func(c *gin.Context) { handler.HandleSuccess(c, nil) })

	api := r.Group("/api")
	rt.RegisterIdentityRoutes(api)
	rt.RegisterFriendRoutes(api)
	rt.RegisterMessageRoutes(api)
	rt.RegisterWebSocketRoutes(r.Group(""))
}
