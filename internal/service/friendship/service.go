// Package friendship 实现好友申请、接受、续期与失效
// 双端写入不是事务：第二次写失败时返回 CodePartialMutation，重试是幂等的
package friendship

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ephemeral_chat/internal/config"
	"ephemeral_chat/internal/infrastructure/metrics"
	"ephemeral_chat/internal/model"
	"ephemeral_chat/internal/store"
	"ephemeral_chat/pkg/errorx"
)

// Service 好友关系引擎
type Service struct {
	store *store.Store
	cfg   config.LifecycleConfig
	now   func() time.Time
}

// Option 构造选项
type Option func(*Service)

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService 构造函数
func NewService(st *store.Store, cfg config.LifecycleConfig, opts ...Option) *Service {
	s := &Service{store: st, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lapsed 好友关系是否已过期，过期只是提示，不会自动删除
func Lapsed(f model.Friend, now time.Time) bool {
	return !f.ExpiresAt.After(now)
}

// SendRequest 发送好友申请
// 自己加自己、已是好友或已在等待时什么也不做；任一方拉黑对方时返回 CodeInvalidState
func (s *Service) SendRequest(ctx context.Context, fromID, toID string) error {
	if fromID == "" || toID == "" {
		return errorx.ErrInvalidParam
	}
	if fromID == toID {
		return nil
	}

	sender, err := s.store.GetUser(ctx, fromID)
	if err != nil {
		return err
	}
	target, err := s.store.GetUser(ctx, toID)
	if err != nil {
		if errorx.IsNotFound(err) {
			metrics.IncFriendshipOp("send", "not_found")
			return errorx.Wrapf(err, errorx.CodeUserNotExist, "用户 %s 不存在", toID)
		}
		return err
	}

	switch {
	case sender.IsFriend(toID) || target.IsFriend(fromID):
		return s.noop("send", "already friends", fromID, toID)
	case target.HasBlocked(fromID):
		return s.rejected("send", "blocked by target", fromID, toID)
	case sender.HasBlocked(toID):
		return s.rejected("send", "target blocked by sender", fromID, toID)
	case sender.HasSentRequestTo(toID) && target.HasRequestFrom(fromID):
		return s.noop("send", "already pending", fromID, toID)
	}

	if s.cfg.AutoAcceptReciprocal && (sender.HasRequestFrom(toID) || target.HasSentRequestTo(fromID)) {
		zap.L().Info("reciprocal request, accepting", zap.String("from", fromID), zap.String("to", toID))
		return s.RespondToRequest(ctx, fromID, toID, true)
	}

	err = s.store.UpdateUser(ctx, fromID, func(u *model.User) (bool, error) {
		if u.HasSentRequestTo(toID) {
			return false, nil
		}
		u.FriendRequestsSent = append(u.FriendRequestsSent, toID)
		return true, nil
	})
	if err != nil {
		metrics.IncFriendshipOp("send", "error")
		return err
	}

	req := model.FriendRequest{
		FromUserID:          fromID,
		DisplayNameSnapshot: sender.DisplayName,
		AvatarSnapshot:      sender.Avatar,
	}
	err = s.store.UpdateUser(ctx, toID, func(u *model.User) (bool, error) {
		if u.HasRequestFrom(fromID) || u.HasBlocked(fromID) {
			return false, nil
		}
		u.FriendRequestsReceived = append(u.FriendRequestsReceived, req)
		return true, nil
	})
	if err != nil {
		return s.partial("send", err, fromID, toID)
	}

	metrics.IncFriendshipOp("send", "ok")
	return nil
}

// RespondToRequest 处理 requestorID 发给 recipientID 的申请
// 任一端仍有记录即视为待处理，申请已失效时静默返回
func (s *Service) RespondToRequest(ctx context.Context, recipientID, requestorID string, accept bool) error {
	if recipientID == "" || requestorID == "" {
		return errorx.ErrInvalidParam
	}
	recipient, err := s.store.GetUser(ctx, recipientID)
	if err != nil {
		return err
	}
	requestor, err := s.store.GetUser(ctx, requestorID)
	if err != nil {
		if !errorx.IsNotFound(err) {
			return err
		}
		// 申请者已重置身份，只清理本端
		err = s.store.UpdateUser(ctx, recipientID, func(u *model.User) (bool, error) {
			return u.RemoveReceivedRequest(requestorID), nil
		})
		if err != nil {
			return err
		}
		return s.noop("respond", "requestor gone", recipientID, requestorID)
	}

	if !recipient.HasRequestFrom(requestorID) && !requestor.HasSentRequestTo(recipientID) {
		return s.noop("respond", "request no longer pending", recipientID, requestorID)
	}

	expires := s.now().Add(s.cfg.FriendshipDuration())
	op := "decline"
	if accept {
		op = "accept"
	}

	err = s.store.UpdateUser(ctx, recipientID, func(u *model.User) (bool, error) {
		changed := u.RemoveReceivedRequest(requestorID)
		if accept {
			// 双向申请同时存在时一并清除
			changed = u.RemoveSentRequest(requestorID) || changed
			u.UpsertFriend(model.Friend{
				FriendUserID:        requestorID,
				DisplayNameSnapshot: requestor.DisplayName,
				ExpiresAt:           expires,
			})
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		metrics.IncFriendshipOp(op, "error")
		return err
	}

	err = s.store.UpdateUser(ctx, requestorID, func(u *model.User) (bool, error) {
		changed := u.RemoveSentRequest(recipientID)
		if accept {
			changed = u.RemoveReceivedRequest(recipientID) || changed
			u.UpsertFriend(model.Friend{
				FriendUserID:        recipientID,
				DisplayNameSnapshot: recipient.DisplayName,
				ExpiresAt:           expires,
			})
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		return s.partial(op, err, recipientID, requestorID)
	}

	metrics.IncFriendshipOp(op, "ok")
	return nil
}

// Renew 把双方的过期时间都设为 now + 有效期
// 只有一端还有记录时补齐另一端
func (s *Service) Renew(ctx context.Context, userID, friendID string) error {
	if userID == "" || friendID == "" || userID == friendID {
		return errorx.ErrInvalidParam
	}
	a, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	b, err := s.store.GetUser(ctx, friendID)
	if err != nil {
		return err
	}
	if !a.IsFriend(friendID) && !b.IsFriend(userID) {
		return s.noop("renew", "not friends", userID, friendID)
	}

	expires := s.now().Add(s.cfg.FriendshipDuration())
	err = s.store.UpdateUser(ctx, userID, func(u *model.User) (bool, error) {
		u.UpsertFriend(model.Friend{FriendUserID: friendID, DisplayNameSnapshot: b.DisplayName, ExpiresAt: expires})
		return true, nil
	})
	if err != nil {
		metrics.IncFriendshipOp("renew", "error")
		return err
	}
	err = s.store.UpdateUser(ctx, friendID, func(u *model.User) (bool, error) {
		u.UpsertFriend(model.Friend{FriendUserID: userID, DisplayNameSnapshot: a.DisplayName, ExpiresAt: expires})
		return true, nil
	})
	if err != nil {
		return s.partial("renew", err, userID, friendID)
	}

	metrics.IncFriendshipOp("renew", "ok")
	return nil
}

// RemoveFriend 双方解除好友，对方已不存在时只处理本端
func (s *Service) RemoveFriend(ctx context.Context, userID, friendID string) error {
	err := s.store.UpdateUser(ctx, userID, func(u *model.User) (bool, error) {
		return u.RemoveFriend(friendID), nil
	})
	if err != nil {
		return err
	}
	err = s.store.UpdateUser(ctx, friendID, func(u *model.User) (bool, error) {
		return u.RemoveFriend(userID), nil
	})
	if err != nil && !errorx.IsNotFound(err) {
		return s.partial("remove", err, userID, friendID)
	}
	metrics.IncFriendshipOp("remove", "ok")
	return nil
}

// Block 拉黑：解除好友并清除双向申请
func (s *Service) Block(ctx context.Context, userID, targetID string) error {
	if userID == "" || targetID == "" || userID == targetID {
		return errorx.ErrInvalidParam
	}
	err := s.store.UpdateUser(ctx, userID, func(u *model.User) (bool, error) {
		changed := detachFrom(u, targetID)
		if !u.HasBlocked(targetID) {
			u.Blocked = append(u.Blocked, targetID)
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		return err
	}
	err = s.store.UpdateUser(ctx, targetID, func(u *model.User) (bool, error) {
		return detachFrom(u, userID), nil
	})
	if err != nil && !errorx.IsNotFound(err) {
		return s.partial("block", err, userID, targetID)
	}
	metrics.IncFriendshipOp("block", "ok")
	return nil
}

// Unblock 取消拉黑，只修改本端
func (s *Service) Unblock(ctx context.Context, userID, targetID string) error {
	return s.store.UpdateUser(ctx, userID, func(u *model.User) (bool, error) {
		return u.Unblock(targetID), nil
	})
}

// Detach 从所有其他用户的文档中移除 userID 的好友与申请记录
// 身份重置时级联调用，单个用户失败不影响其余用户
func (s *Service) Detach(ctx context.Context, userID string) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, other := range users {
		if other.ID == userID || !references(other, userID) {
			continue
		}
		err := s.store.UpdateUser(ctx, other.ID, func(u *model.User) (bool, error) {
			return detachFrom(u, userID), nil
		})
		if err != nil && !errorx.IsNotFound(err) {
			zap.L().Warn("detach from counterpart failed",
				zap.String("user", userID), zap.String("counterpart", other.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errorx.Wrapf(errors.Join(errs...), errorx.CodePartialMutation, "detach %s: %d counterparts failed", userID, len(errs))
	}
	return nil
}

// SweepLapsed 删除所有已过期的好友条目，返回删除条数
func (s *Service) SweepLapsed(ctx context.Context) (int, error) {
	now := s.now()
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, user := range users {
		n := 0
		err := s.store.UpdateUser(ctx, user.ID, func(u *model.User) (bool, error) {
			kept := make([]model.Friend, 0, len(u.Friends))
			for _, f := range u.Friends {
				if !Lapsed(f, now) {
					kept = append(kept, f)
				}
			}
			n = len(u.Friends) - len(kept)
			u.Friends = kept
			return n > 0, nil
		})
		if err != nil && !errorx.IsNotFound(err) {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

// references 判断 u 是否持有 id 的任何关系记录
func references(u *model.User, id string) bool {
	return u.IsFriend(id) || u.HasSentRequestTo(id) || u.HasRequestFrom(id)
}

// detachFrom 清除 u 上与 id 相关的好友和申请
func detachFrom(u *model.User, id string) bool {
	changed := u.RemoveFriend(id)
	changed = u.RemoveSentRequest(id) || changed
	changed = u.RemoveReceivedRequest(id) || changed
	return changed
}

func (s *Service) noop(op, reason, a, b string) error {
	metrics.IncFriendshipOp(op, "noop")
	zap.L().Debug("friendship no-op", zap.String("op", op), zap.String("reason", reason),
		zap.String("a", a), zap.String("b", b))
	return nil
}

func (s *Service) rejected(op, reason, a, b string) error {
	metrics.IncFriendshipOp(op, "rejected")
	zap.L().Info("friendship op rejected", zap.String("op", op), zap.String("reason", reason),
		zap.String("a", a), zap.String("b", b))
	return errorx.Newf(errorx.CodeInvalidState, "%s %s/%s: %s", op, a, b, reason)
}

func (s *Service) partial(op string, err error, a, b string) error {
	metrics.IncFriendshipOp(op, "partial")
	zap.L().Warn("friendship mutation applied to one side only",
		zap.String("op", op), zap.String("a", a), zap.String("b", b), zap.Error(err))
	return errorx.Wrapf(err, errorx.CodePartialMutation, "%s %s/%s: second write failed", op, a, b)
}
