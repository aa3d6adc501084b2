package handler

import (
	"ephemeral_chat/internal/gateway/websocket"
	"ephemeral_chat/internal/service"
)

// Handlers 聚合所有 Handler，Router 层通过它访问各个 Handler
type Handlers struct {
	Identity *IdentityHandler
	Friend   *FriendHandler
	Message  *MessageHandler
	Ws       *WsHandler
}

// NewHandlers 注入 Service 聚合与连接表
func NewHandlers(svc *service.Services, hub *websocket.Hub) *Handlers {
	return &Handlers{
		Identity: NewIdentityHandler(svc.Identity, svc.DeepLink),
		Friend:   NewFriendHandler(svc.Identity, svc.Friendship),
		Message:  NewMessageHandler(svc.Identity, svc.Messages, svc.Store),
		Ws:       NewWsHandler(svc.Identity, hub, svc, svc.Store),
	}
}
