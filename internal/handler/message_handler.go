package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ephemeral_chat/internal/dto/request"
	"ephemeral_chat/internal/dto/respond"
	"ephemeral_chat/internal/model"
	"ephemeral_chat/internal/service"
	"ephemeral_chat/internal/service/ephemeral"
)

// renderOwner 通过 HTTP 拉取消息时登记删除计时的 owner
// 没有视图可以关闭，计时到点即删除
const renderOwner = "http-render"

// MessageReader 读取会话消息
type MessageReader interface {
	ListMessages(ctx context.Context, chatID string) ([]*model.Message, error)
}

// MessageHandler 消息请求
type MessageHandler struct {
	identity service.IdentityService
	messages service.MessageService
	reader   MessageReader
}

// NewMessageHandler 构造函数
func NewMessageHandler(identity service.IdentityService, messages service.MessageService, reader MessageReader) *MessageHandler {
	return &MessageHandler{identity: identity, messages: messages, reader: reader}
}

// Send 发送消息
// POST /message/send
// 请求体: request.SendMessageRequest
// 响应: model.Message
func (h *MessageHandler) Send(c *gin.Context) {
	var req request.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	uid, ok := currentUserID(c, h.identity)
	if !ok {
		return
	}
	msg, err := h.messages.Send(c.Request.Context(), ephemeral.SendInput{
		SenderID:    uid,
		RecipientID: req.PeerId,
		Text:        req.Text,
		ImageRef:    req.ImageRef,
		Policy:      model.PolicyKind(req.Policy),
		Duration:    time.Duration(req.DurationMs) * time.Millisecond,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, msg)
}

// List 打开会话并返回当前消息，返回的每条消息都视为已被当前用户查看
// GET /message/list?peerId=xxx
// 响应: respond.ChatRespond
func (h *MessageHandler) List(c *gin.Context) {
	var req request.ChatRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	uid, ok := currentUserID(c, h.identity)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	chatID := model.ChatID(uid, req.PeerId)

	wiped, err := h.messages.OpenChat(ctx, chatID)
	if err != nil {
		HandleError(c, err)
		return
	}
	msgs, err := h.reader.ListMessages(ctx, chatID)
	if err != nil {
		HandleError(c, err)
		return
	}
	for _, m := range msgs {
		if err := h.messages.Observe(ctx, m, uid, renderOwner); err != nil {
			zap.L().Warn("observe message failed",
				zap.String("chat", chatID),
				zap.String("message", m.ID),
				zap.Error(err),
			)
		}
	}
	HandleSuccess(c, respond.ChatRespond{ChatId: chatID, Wiped: wiped, Messages: msgs})
}
