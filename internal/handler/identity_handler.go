// Package handler 提供本地 HTTP 接口的请求处理器
// 所有操作都以当前激活的身份进行
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"ephemeral_chat/internal/dto/request"
	"ephemeral_chat/internal/dto/respond"
	"ephemeral_chat/internal/service"
	"ephemeral_chat/pkg/errorx"
)

// LinkConsumer 分享链接消费
type LinkConsumer interface {
	Consume(ctx context.Context, rawURL, currentUserID string) (string, error)
}

// IdentityHandler 身份相关请求
type IdentityHandler struct {
	identity service.IdentityService
	links    LinkConsumer
}

// NewIdentityHandler 构造函数
func NewIdentityHandler(identity service.IdentityService, links LinkConsumer) *IdentityHandler {
	return &IdentityHandler{identity: identity, links: links}
}

// Current 当前身份
// GET /identity/current
func (h *IdentityHandler) Current(c *gin.Context) {
	HandleSuccess(c, h.snapshot())
}

// Reset 销毁当前身份并生成新身份
// POST /identity/reset
func (h *IdentityHandler) Reset(c *gin.Context) {
	if _, err := h.identity.ResetIdentity(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, h.snapshot())
}

// UpdateDisplayName 修改昵称
// POST /identity/displayName
// 请求体: request.UpdateDisplayNameRequest
func (h *IdentityHandler) UpdateDisplayName(c *gin.Context) {
	var req request.UpdateDisplayNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.identity.UpdateDisplayName(c.Request.Context(), req.DisplayName); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, h.snapshot())
}

// UpdateAvatar 修改头像
// POST /identity/avatar
// 请求体: request.UpdateAvatarRequest
func (h *IdentityHandler) UpdateAvatar(c *gin.Context) {
	var req request.UpdateAvatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.identity.UpdateAvatar(c.Request.Context(), req.Avatar); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, h.snapshot())
}

// Heartbeat 刷新在线状态
// POST /identity/heartbeat
func (h *IdentityHandler) Heartbeat(c *gin.Context) {
	if err := h.identity.Heartbeat(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// ConsumeDeepLink 消费 ?addId= 分享链接
// POST /identity/deepLink
// 请求体: request.ConsumeDeepLinkRequest
func (h *IdentityHandler) ConsumeDeepLink(c *gin.Context) {
	var req request.ConsumeDeepLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	uid, ok := currentUserID(c, h.identity)
	if !ok {
		return
	}
	cleaned, err := h.links.Consume(c.Request.Context(), req.Url, uid)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.DeepLinkRespond{CleanedUrl: cleaned})
}

func (h *IdentityHandler) snapshot() respond.IdentityRespond {
	return respond.IdentityRespond{
		State:       h.identity.State().String(),
		User:        h.identity.Current(),
		NameHistory: h.identity.NameHistory(),
	}
}

// currentUserID 未激活身份时直接写回 InvalidState
func currentUserID(c *gin.Context, identity service.IdentityService) (string, bool) {
	uid := identity.UserID()
	if uid == "" {
		HandleError(c, errorx.ErrInvalidState)
		return "", false
	}
	return uid, true
}
