package router

import "github.com/gin-gonic/gin"

// RegisterIdentityRoutes 身份与分享链接
func (rt *Router) RegisterIdentityRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/identity")
	{
		g.GET("/current", rt.handlers.Identity.Current)
		g.POST("/reset", rt.handlers.Identity.Reset)
		g.POST("/displayName", rt.handlers.Identity.UpdateDisplayName)
		g.POST("/avatar", rt.handlers.Identity.UpdateAvatar)
		g.POST("/heartbeat", rt.handlers.Identity.Heartbeat)
		g.POST("/deepLink", rt.handlers.Identity.ConsumeDeepLink)
	}
}
