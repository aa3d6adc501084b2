package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"ephemeral_chat/internal/dto/request"
	"ephemeral_chat/internal/dto/respond"
	"ephemeral_chat/internal/service"
)

// FriendHandler 好友关系请求
type FriendHandler struct {
	identity service.IdentityService
	friends  service.FriendshipService
}

// NewFriendHandler 构造函数
func NewFriendHandler(identity service.IdentityService, friends service.FriendshipService) *FriendHandler {
	return &FriendHandler{identity: identity, friends: friends}
}

// SendRequest 发送好友申请
// POST /friend/request
func (h *FriendHandler) SendRequest(c *gin.Context) {
	h.withTarget(c, h.friends.SendRequest)
}

// Respond 接受或拒绝好友申请
// POST /friend/respond
// 请求体: request.RespondFriendRequest
func (h *FriendHandler) Respond(c *gin.Context) {
	var req request.RespondFriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	uid, ok := currentUserID(c, h.identity)
	if !ok {
		return
	}
	if err := h.friends.RespondToRequest(c.Request.Context(), uid, req.RequestorId, *req.Accept); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Renew 续期
// POST /friend/renew
func (h *FriendHandler) Renew(c *gin.Context) {
	h.withTarget(c, h.friends.Renew)
}

// Remove 删除好友
// POST /friend/remove
func (h *FriendHandler) Remove(c *gin.Context) {
	h.withTarget(c, h.friends.RemoveFriend)
}

// Block 拉黑
// POST /friend/block
func (h *FriendHandler) Block(c *gin.Context) {
	h.withTarget(c, h.friends.Block)
}

// Unblock 取消拉黑
// POST /friend/unblock
func (h *FriendHandler) Unblock(c *gin.Context) {
	h.withTarget(c, h.friends.Unblock)
}

// Sweep 立即清理全部过期好友关系
// POST /friend/sweep
func (h *FriendHandler) Sweep(c *gin.Context) {
	n, err := h.friends.SweepLapsed(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.SweepRespond{Removed: n})
}

// withTarget 绑定 request.FriendTargetRequest，以当前身份调用 op
func (h *FriendHandler) withTarget(c *gin.Context, op func(ctx context.Context, uid, target string) error) {
	var req request.FriendTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	uid, ok := currentUserID(c, h.identity)
	if !ok {
		return
	}
	if err := op(c.Request.Context(), uid, req.UserId); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
