// Package identity 管理本设备的匿名身份
// 状态机：NoIdentity -> Resolving -> Active
package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ephemeral_chat/internal/localstate"
	"ephemeral_chat/internal/model"
	"ephemeral_chat/internal/store"
	"ephemeral_chat/pkg/errorx"
	"ephemeral_chat/pkg/util/avatar"
	"ephemeral_chat/pkg/util/random"
)

// State 会话状态
type State int

const (
	NoIdentity State = iota
	Resolving
	Active
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Active:
		return "active"
	default:
		return "no_identity"
	}
}

// maxIDAttempts 随机 ID 冲突时的最大重试次数
const maxIDAttempts = 16

// Detacher 身份重置时负责清理其他用户上的关系记录
type Detacher interface {
	Detach(ctx context.Context, userID string) error
}

// Service 身份与会话管理
type Service struct {
	store    *store.Store
	local    localstate.Store
	detacher Detacher
	now      func() time.Time
	newID    func() string
	newName  func() string

	// 仅允许一个 Boot/Reset 同时进行
	lifecycle sync.Mutex

	mu        sync.RWMutex
	state     State
	current   *model.User
	history   []string
	cancelSub func()
}

// Option 构造选项
type Option func(*Service)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator 替换用户 ID 生成器
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithNameGenerator 替换默认昵称生成器
func WithNameGenerator(gen func() string) Option {
	return func(s *Service) { s.newName = gen }
}

// NewService detacher 可为 nil，此时重置身份不做级联清理
func NewService(st *store.Store, local localstate.Store, detacher Detacher, opts ...Option) *Service {
	s := &Service{
		store:    st,
		local:    local,
		detacher: detacher,
		now:      time.Now,
		newID:    func() string { return random.GetRandomDigits(8) },
		newName:  random.GetDisplayName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Boot 恢复本地身份，没有或已失效时生成新身份
func (s *Service) Boot(ctx context.Context) (*model.User, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.setState(Resolving)
	st, err := s.local.Load()
	if err != nil {
		s.setState(NoIdentity)
		return nil, err
	}
	s.mu.Lock()
	s.history = st.NameHistory
	s.mu.Unlock()

	if st.UserID != "" {
		now := s.now()
		err := s.store.UpdateUser(ctx, st.UserID, func(u *model.User) (bool, error) {
			u.Online = true
			u.LastActiveAt = now
			return true, nil
		})
		switch {
		case err == nil:
			if err := s.activate(ctx, st.UserID); err != nil {
				s.setState(NoIdentity)
				return nil, err
			}
			zap.L().Info("identity restored", zap.String("user", st.UserID))
			return s.Current(), nil
		case errorx.IsNotFound(err):
			zap.L().Info("stored identity no longer exists, creating a new one", zap.String("user", st.UserID))
		default:
			s.setState(NoIdentity)
			return nil, err
		}
	}

	return s.synthesize(ctx, st)
}

// ResetIdentity 丢弃当前身份并生成新身份
// 先释放订阅，再级联删除旧用户
func (s *Service) ResetIdentity(ctx context.Context) (*model.User, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	cancel := s.cancelSub
	old := s.current
	s.cancelSub = nil
	s.current = nil
	s.state = Resolving
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if old != nil {
		if s.detacher != nil {
			if err := s.detacher.Detach(ctx, old.ID); err != nil {
				// 残留记录会在对方处理申请或续期时被清理
				zap.L().Warn("identity reset cascade incomplete", zap.String("user", old.ID), zap.Error(err))
			}
		}
		if err := s.store.DeleteUser(ctx, old.ID); err != nil {
			s.setState(NoIdentity)
			return nil, err
		}
		zap.L().Info("identity deleted", zap.String("user", old.ID))
	}

	st, err := s.local.Load()
	if err != nil {
		s.setState(NoIdentity)
		return nil, err
	}
	st.UserID = ""
	if err := s.local.Save(st); err != nil {
		s.setState(NoIdentity)
		return nil, err
	}
	return s.synthesize(ctx, st)
}

// UpdateDisplayName 修改昵称并写入本地历史
func (s *Service) UpdateDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errorx.Newf(errorx.CodeInvalidParam, "昵称不能为空")
	}
	id, err := s.activeID()
	if err != nil {
		return err
	}
	err = s.store.UpdateUser(ctx, id, func(u *model.User) (bool, error) {
		if u.DisplayName == name {
			return false, nil
		}
		u.DisplayName = name
		return true, nil
	})
	if err != nil {
		return err
	}
	return s.pushHistory(name)
}

// UpdateAvatar 修改头像，传空串时按昵称重新生成
func (s *Service) UpdateAvatar(ctx context.Context, avatarURL string) error {
	id, err := s.activeID()
	if err != nil {
		return err
	}
	avatarURL = strings.TrimSpace(avatarURL)
	return s.store.UpdateUser(ctx, id, func(u *model.User) (bool, error) {
		next := avatarURL
		if next == "" {
			next = avatar.Generate(u.DisplayName)
		}
		if u.Avatar == next {
			return false, nil
		}
		u.Avatar = next
		return true, nil
	})
}

// Heartbeat 标记在线并刷新活跃时间
func (s *Service) Heartbeat(ctx context.Context) error {
	id, err := s.activeID()
	if err != nil {
		return err
	}
	now := s.now()
	return s.store.UpdateUser(ctx, id, func(u *model.User) (bool, error) {
		u.Online = true
		u.LastActiveAt = now
		return true, nil
	})
}

// Close 标记离线并释放订阅
func (s *Service) Close(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	cancel := s.cancelSub
	cur := s.current
	s.cancelSub = nil
	s.current = nil
	s.state = NoIdentity
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if cur == nil {
		return nil
	}
	now := s.now()
	err := s.store.UpdateUser(ctx, cur.ID, func(u *model.User) (bool, error) {
		u.Online = false
		u.TypingInChat = ""
		u.LastActiveAt = now
		return true, nil
	})
	if errorx.IsNotFound(err) {
		return nil
	}
	return err
}

// Current 当前用户文档的副本，未激活时为 nil
func (s *Service) Current() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// UserID 当前用户 ID，未激活时为空
func (s *Service) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// State 当前状态
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// NameHistory 最近使用过的昵称，最近的在前
func (s *Service) NameHistory() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.history...)
}

// synthesize 生成新身份，ID 冲突时重试，不向调用方暴露冲突
func (s *Service) synthesize(ctx context.Context, st localstate.State) (*model.User, error) {
	name := s.newName()
	var u *model.User
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			s.setState(NoIdentity)
			return nil, errorx.Wrapf(errorx.ErrServerBusy, errorx.CodeServerBusy, "no free user id after %d attempts", maxIDAttempts)
		}
		u = model.NewUser(s.newID(), name, avatar.Generate(name), s.now())
		err := s.store.CreateUser(ctx, u)
		if err == nil {
			break
		}
		if !errorx.HasCode(err, errorx.CodeCollision) {
			s.setState(NoIdentity)
			return nil, err
		}
		zap.L().Debug("user id collision, retrying", zap.String("id", u.ID))
	}

	st.UserID = u.ID
	st.NameHistory = localstate.PushName(st.NameHistory, name)
	if err := s.local.Save(st); err != nil {
		s.setState(NoIdentity)
		return nil, err
	}
	s.mu.Lock()
	s.history = st.NameHistory
	s.mu.Unlock()

	if err := s.activate(ctx, u.ID); err != nil {
		s.setState(NoIdentity)
		return nil, err
	}
	zap.L().Info("identity created", zap.String("user", u.ID), zap.String("name", name))
	return s.Current(), nil
}

// activate 订阅用户文档，之后 current 始终镜像存储中的状态
func (s *Service) activate(ctx context.Context, userID string) error {
	cancel, err := s.store.SubscribeUser(ctx, userID, func(u *model.User) {
		s.mu.Lock()
		s.current = u
		s.mu.Unlock()
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cancelSub = cancel
	s.state = Active
	s.mu.Unlock()
	return nil
}

func (s *Service) activeID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Active || s.current == nil {
		return "", errorx.Newf(errorx.CodeInvalidState, "no active identity")
	}
	return s.current.ID, nil
}

func (s *Service) pushHistory(name string) error {
	st, err := s.local.Load()
	if err != nil {
		return err
	}
	st.NameHistory = localstate.PushName(st.NameHistory, name)
	if err := s.local.Save(st); err != nil {
		return err
	}
	s.mu.Lock()
	s.history = st.NameHistory
	s.mu.Unlock()
	return nil
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
