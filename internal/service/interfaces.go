// Package service 定义引擎接口并负责依赖注入
// Handler 层只依赖这里的接口
package service

import (
	"context"

	"ephemeral_chat/internal/model"
	"ephemeral_chat/internal/service/ephemeral"
	"ephemeral_chat/internal/service/identity"
)

// IdentityService 本地身份
type IdentityService interface {
	Boot(ctx context.Context) (*model.User, error)
	ResetIdentity(ctx context.Context) (*model.User, error)
	UpdateDisplayName(ctx context.Context, name string) error
	UpdateAvatar(ctx context.Context, avatarURL string) error
	Heartbeat(ctx context.Context) error
	Close(ctx context.Context) error
	Current() *model.User
	UserID() string
	State() identity.State
	NameHistory() []string
}

// FriendshipService 好友关系
type FriendshipService interface {
	SendRequest(ctx context.Context, fromID, toID string) error
	RespondToRequest(ctx context.Context, recipientID, requestorID string, accept bool) error
	Renew(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	Block(ctx context.Context, userID, targetID string) error
	Unblock(ctx context.Context, userID, targetID string) error
	SweepLapsed(ctx context.Context) (int, error)
}

// MessageService 消息生命周期
type MessageService interface {
	Send(ctx context.Context, in ephemeral.SendInput) (*model.Message, error)
	Observe(ctx context.Context, msg *model.Message, viewerID, owner string) error
	OpenChat(ctx context.Context, chatID string) (bool, error)
	CancelOwner(owner string) int
}
