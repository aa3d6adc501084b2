package router

import "github.com/gin-gonic/gin"

// RegisterFriendRoutes 好友申请与好友关系管理
func (rt *Router) RegisterFriendRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/friend")
	{
		// ===== 好友申请 =====
		g.POST("/request", rt.handlers.Friend.SendRequest)
		g.POST("/respond", rt.handlers.Friend.Respond)

		// ===== 好友关系管理 =====
		g.POST("/renew", rt.handlers.Friend.Renew)
		g.POST("/remove", rt.handlers.Friend.Remove)
		g.POST("/block", rt.handlers.Friend.Block)
		g.POST("/unblock", rt.handlers.Friend.Unblock)
		g.POST("/sweep", rt.handlers.Friend.Sweep)
	}
}
