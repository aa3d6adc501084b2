package router

import "github.com/gin-gonic/gin"

// RegisterMessageRoutes 消息收发
func (rt *Router) RegisterMessageRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/message")
	{
		g.POST("/send", rt.handlers.Message.Send)
		g.GET("/list", rt.handlers.Message.List)
	}
}
