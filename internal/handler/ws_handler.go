package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ephemeral_chat/internal/dto/request"
	"ephemeral_chat/internal/gateway/websocket"
	"ephemeral_chat/internal/service"
)

// WsHandler 订阅推送
type WsHandler struct {
	identity service.IdentityService
	hub      *websocket.Hub
	opener   websocket.ChatOpener
	watcher  websocket.UserWatcher
}

// NewWsHandler 构造函数
func NewWsHandler(identity service.IdentityService, hub *websocket.Hub, opener websocket.ChatOpener, watcher websocket.UserWatcher) *WsHandler {
	return &WsHandler{identity: identity, hub: hub, opener: opener, watcher: watcher}
}

// Chat 升级为 WebSocket，推送与 peerId 的会话视图
// GET /ws/chat?peerId=xxx
// 上行帧: {"type":"typing","draft":"..."} 或 {"type":"send","text":"...","policy":"viewOnce"}
func (h *WsHandler) Chat(c *gin.Context) {
	var req request.ChatRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if _, ok := currentUserID(c, h.identity); !ok {
		return
	}
	if err := h.hub.ServeChat(c.Writer, c.Request, h.opener, req.PeerId); err != nil {
		zap.L().Warn("ws chat ended", zap.String("peer", req.PeerId), zap.Error(err))
	}
}

// Me 升级为 WebSocket，推送当前用户文档（好友、申请、在线状态）
// GET /ws/me
func (h *WsHandler) Me(c *gin.Context) {
	uid, ok := currentUserID(c, h.identity)
	if !ok {
		return
	}
	if err := h.hub.ServeUser(c.Writer, c.Request, h.watcher, uid); err != nil {
		zap.L().Warn("ws me ended", zap.String("user", uid), zap.Error(err))
	}
}
