package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"ephemeral_chat/internal/config"
	"ephemeral_chat/internal/localstate"
	"ephemeral_chat/internal/service/chatview"
	"ephemeral_chat/internal/service/deeplink"
	"ephemeral_chat/internal/service/ephemeral"
	"ephemeral_chat/internal/service/friendship"
	"ephemeral_chat/internal/service/identity"
	"ephemeral_chat/internal/store"
)

// Services 聚合所有引擎实例，作为依赖注入的入口
type Services struct {
	Store      *store.Store
	Identity   *identity.Service
	Friendship *friendship.Service
	Messages   *ephemeral.Engine
	DeepLink   *deeplink.Consumer
	Sweeper    *friendship.LapseSweeper

	lifecycle config.LifecycleConfig
}

// NewServices 创建并注入所有引擎
// validate 可为 nil；传入已注册翻译的校验器时，消息参数错误可被翻译
func NewServices(st *store.Store, local localstate.Store, lc config.LifecycleConfig, validate *validator.Validate) *Services {
	friends := friendship.NewService(st, lc)
	return &Services{
		Store:      st,
		Identity:   identity.NewService(st, local, friends),
		Friendship: friends,
		Messages:   ephemeral.NewEngine(st, lc, ephemeral.WithValidator(validate)),
		DeepLink:   deeplink.NewConsumer(friends),
		Sweeper:    friendship.NewLapseSweeper(friends, lc.LapseSweepInterval.Duration),
		lifecycle:  lc,
	}
}

// ChatDeps 打开会话视图所需依赖
func (s *Services) ChatDeps() chatview.Deps {
	return chatview.Deps{
		Store:    s.Store,
		Engine:   s.Messages,
		Debounce: s.lifecycle.TypingDebounce.Duration,
	}
}

// OpenChat 以当前身份打开与 peerID 的会话
func (s *Services) OpenChat(ctx context.Context, peerID string, onChange func(chatview.Update)) (*chatview.View, error) {
	return chatview.Open(ctx, s.ChatDeps(), s.Identity.UserID(), peerID, onChange)
}

// Close 按依赖反序关闭
func (s *Services) Close(ctx context.Context) {
	s.Sweeper.Stop()
	s.Messages.Close()
	if err := s.Identity.Close(ctx); err != nil {
		zap.L().Warn("close identity failed", zap.Error(err))
	}
}

var (
	_ IdentityService   = (*identity.Service)(nil)
	_ FriendshipService = (*friendship.Service)(nil)
	_ MessageService    = (*ephemeral.Engine)(nil)
)
