package websocket

import (
	"context"

	"ephemeral_chat/internal/model"
	"ephemeral_chat/internal/service/chatview"
)

// ChatOpener 以当前身份打开会话视图
// 用于解耦 websocket 包对 service 包的依赖
type ChatOpener interface {
	OpenChat(ctx context.Context, peerID string, onChange func(chatview.Update)) (*chatview.View, error)
}

// UserWatcher 订阅用户文档
type UserWatcher interface {
	SubscribeUser(ctx context.Context, userID string, fn func(*model.User)) (func(), error)
}

// Frame 推送与上行共用的帧格式
type Frame struct {
	Type string `json:"type"`           // chat | user | error | send | typing
	Data any    `json:"data,omitempty"` // 下行数据
}

// inbound 客户端上行帧
type inbound struct {
	Type       string `json:"type"`
	Draft      string `json:"draft"`
	Text       string `json:"text"`
	ImageRef   string `json:"imageRef"`
	Policy     string `json:"policy"`
	DurationMs int64  `json:"durationMs"`
}

type errorData struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
