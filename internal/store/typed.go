package store

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"ephemeral_chat/internal/model"
	"ephemeral_chat/pkg/errorx"
)

func decode[T any](key string, data []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeStoreError, "decode document %s", key)
	}
	return v, nil
}

func getDoc[T any](ctx context.Context, s *Store, key string, notFoundCode int) (*T, error) {
	snap, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, errorx.Newf(notFoundCode, "document %s not found", key)
	}
	return decode[T](key, snap.Value)
}

func updateDoc[T any](ctx context.Context, s *Store, key string, fn func(*T) (bool, error)) error {
	return s.Update(ctx, key, func(cur []byte) ([]byte, bool, error) {
		v, err := decode[T](key, cur)
		if err != nil {
			return nil, false, err
		}
		changed, err := fn(v)
		if err != nil || !changed {
			return nil, false, err
		}
		next, err := json.Marshal(v)
		if err != nil {
			return nil, false, errorx.Wrapf(err, errorx.CodeStoreError, "encode document %s", key)
		}
		return next, true, nil
	})
}

// ==================== User ====================

// GetUser 用户不存在返回 CodeUserNotExist
func (s *Store) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return getDoc[model.User](ctx, s, UserKey(userID), errorx.CodeUserNotExist)
}

// PutUser 整体写入用户文档
func (s *Store) PutUser(ctx context.Context, u *model.User) error {
	return s.Put(ctx, UserKey(u.ID), u)
}

// CreateUser 用户 ID 已被占用时返回 CodeCollision
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	return s.Create(ctx, UserKey(u.ID), u)
}

// UpdateUser 对用户文档读改写，用户不存在返回 NotFound
func (s *Store) UpdateUser(ctx context.Context, userID string, fn func(*model.User) (bool, error)) error {
	return updateDoc(ctx, s, UserKey(userID), fn)
}

// DeleteUser 删除用户文档
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	return s.Delete(ctx, UserKey(userID))
}

// ListUsers 返回所有用户
func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	items, err := s.List(ctx, usersRoot)
	if err != nil {
		return nil, err
	}
	users := make([]*model.User, 0, len(items))
	for _, item := range items {
		u, err := decode[model.User](usersRoot, item)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// DecodeUser 文档不存在时返回 nil
func DecodeUser(snap Snapshot) (*model.User, error) {
	if !snap.Exists {
		return nil, nil
	}
	return decode[model.User](snap.Key, snap.Value)
}

// SubscribeUser 订阅用户文档，用户不存在时回调参数为 nil
func (s *Store) SubscribeUser(ctx context.Context, userID string, fn func(*model.User)) (func(), error) {
	return s.Subscribe(ctx, UserKey(userID), func(snap Snapshot) {
		u, err := DecodeUser(snap)
		if err != nil {
			s.log.Error("decode user snapshot failed", zap.String("key", snap.Key), zap.Error(err))
			return
		}
		fn(u)
	})
}

// ==================== Chat ====================

// GetChat 会话不存在返回 NotFound
func (s *Store) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	return getDoc[model.Chat](ctx, s, ChatKey(chatID), errorx.CodeNotFound)
}

// PutChat 整体写入会话文档
func (s *Store) PutChat(ctx context.Context, c *model.Chat) error {
	return s.Put(ctx, ChatKey(c.ID), c)
}

// UpdateChat 对会话文档读改写
func (s *Store) UpdateChat(ctx context.Context, chatID string, fn func(*model.Chat) (bool, error)) error {
	return updateDoc(ctx, s, ChatKey(chatID), fn)
}

// ==================== Message ====================

// PutMessage 写入消息，同时刷新会话消息集合
func (s *Store) PutMessage(ctx context.Context, m *model.Message) error {
	return s.Put(ctx, MessageKey(m.ChatID, m.ID), m)
}

// GetMessage 消息不存在返回 NotFound
func (s *Store) GetMessage(ctx context.Context, chatID, msgID string) (*model.Message, error) {
	return getDoc[model.Message](ctx, s, MessageKey(chatID, msgID), errorx.CodeNotFound)
}

// UpdateMessage 对消息读改写，已删除的消息返回 NotFound 且不会被重建
func (s *Store) UpdateMessage(ctx context.Context, chatID, msgID string, fn func(*model.Message) (bool, error)) error {
	return updateDoc(ctx, s, MessageKey(chatID, msgID), fn)
}

// DeleteMessage 删除消息，已删除时什么也不做
func (s *Store) DeleteMessage(ctx context.Context, chatID, msgID string) error {
	return s.Delete(ctx, MessageKey(chatID, msgID))
}

// ListMessages 按 sentAt、id 升序返回会话消息
func (s *Store) ListMessages(ctx context.Context, chatID string) ([]*model.Message, error) {
	snap, err := s.Get(ctx, MessagesPath(chatID))
	if err != nil {
		return nil, err
	}
	return DecodeMessages(snap)
}

// DecodeMessages 解析集合快照
func DecodeMessages(snap Snapshot) ([]*model.Message, error) {
	msgs := make([]*model.Message, 0, len(snap.Items))
	for _, item := range snap.Items {
		m, err := decode[model.Message](snap.Key, item)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// SubscribeMessages 订阅会话消息集合，每次回调拿到完整有序列表
func (s *Store) SubscribeMessages(ctx context.Context, chatID string, fn func([]*model.Message)) (func(), error) {
	return s.Subscribe(ctx, MessagesPath(chatID), func(snap Snapshot) {
		msgs, err := DecodeMessages(snap)
		if err != nil {
			s.log.Error("decode message collection failed", zap.String("key", snap.Key), zap.Error(err))
			return
		}
		fn(msgs)
	})
}
