package router

import "github.com/gin-gonic/gin"

// RegisterWebSocketRoutes 订阅推送入口
// 请求示例: ws://127.0.0.1:8000/ws/chat?peerId=12345678
func (rt *Router) RegisterWebSocketRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws/chat", rt.handlers.Ws.Chat)
	rg.GET("/ws/me", rt.handlers.Ws.Me)
}
