// Package ephemeral 实现消息的发送、查看后销毁和会话无活动清空
package ephemeral

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"ephemeral_chat/internal/config"
	"ephemeral_chat/internal/infrastructure/metrics"
	"ephemeral_chat/internal/model"
	"ephemeral_chat/internal/store"
	"ephemeral_chat/pkg/errorx"
	"ephemeral_chat/pkg/util/snowflake"
)

// deleteTimeout 定时删除时单次存储调用的超时
const deleteTimeout = 5 * time.Second

// SendInput 发送消息参数，Text 与 ImageRef 必须且只能有一个
// 用户 ID 会拼进会话 ID 和存储键，不能含 "/" 或会话 ID 分隔符 "_"
type SendInput struct {
	SenderID    string           `json:"senderId" validate:"required,excludesall=/_"`
	RecipientID string           `json:"recipientId" validate:"required,excludesall=/_,nefield=SenderID"`
	Text        string           `json:"text" validate:"required_without=ImageRef,excluded_with=ImageRef"`
	ImageRef    string           `json:"imageRef" validate:"required_without=Text,excluded_with=Text"`
	Policy      model.PolicyKind `json:"policy" validate:"omitempty,oneof=persistent viewOnce timedDelete"`
	Duration    time.Duration    `json:"duration" validate:"gte=0"`
}

// Engine 消息生命周期引擎，持有所有待执行的删除定时器
type Engine struct {
	store    *store.Store
	cfg      config.LifecycleConfig
	now      func() time.Time
	newID    func() string
	validate *validator.Validate

	mu     sync.Mutex
	timers map[string]*scheduled // 消息键 -> 定时器，每条消息至多一个
	closed bool
}

type scheduled struct {
	chatID string
	msgID  string
	owner  string
	kind   model.PolicyKind
	timer  *time.Timer
}

// Option 构造选项
type Option func(*Engine)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator 替换消息 ID 生成器
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithValidator 使用已注册翻译的校验器
func WithValidator(v *validator.Validate) Option {
	return func(e *Engine) {
		if v != nil {
			e.validate = v
		}
	}
}

// NewEngine 构造函数
func NewEngine(st *store.Store, cfg config.LifecycleConfig, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		cfg:      cfg,
		now:      time.Now,
		newID:    snowflake.GenerateIDString,
		validate: validator.New(),
		timers:   make(map[string]*scheduled),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Send 发送消息，首条消息时创建会话
// 图片消息强制为阅后即焚，未给时长的定时销毁使用默认时长
func (e *Engine) Send(ctx context.Context, in SendInput) (*model.Message, error) {
	if strings.TrimSpace(in.Text) == "" {
		in.Text = ""
	}
	in.ImageRef = strings.TrimSpace(in.ImageRef)
	if err := e.validate.Struct(in); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeInvalidParam, "消息参数错误")
	}

	if _, err := e.store.GetUser(ctx, in.RecipientID); err != nil {
		return nil, err
	}

	policy := e.resolvePolicy(in)
	chatID := model.ChatID(in.SenderID, in.RecipientID)
	now := e.now()

	if err := e.touchChat(ctx, chatID, now); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:              e.newID(),
		ChatID:          chatID,
		SenderID:        in.SenderID,
		Text:            in.Text,
		ImageRef:        in.ImageRef,
		SentAt:          now,
		EphemeralPolicy: policy,
		ViewedBy:        []string{},
	}
	if err := e.store.PutMessage(ctx, msg); err != nil {
		return nil, err
	}
	zap.L().Debug("message sent",
		zap.String("chat", chatID),
		zap.String("msg", msg.ID),
		zap.String("policy", string(policy.Kind)),
	)
	return msg, nil
}

func (e *Engine) resolvePolicy(in SendInput) model.EphemeralPolicy {
	if in.ImageRef != "" {
		return model.ViewOnce()
	}
	switch in.Policy {
	case model.PolicyViewOnce:
		return model.ViewOnce()
	case model.PolicyTimedDelete:
		d := in.Duration
		if d <= 0 {
			d = e.cfg.TimedDeleteDefault.Duration
		}
		return model.TimedDelete(d)
	default:
		return model.Persistent()
	}
}

// touchChat 会话不存在则创建，否则刷新最后活动时间
func (e *Engine) touchChat(ctx context.Context, chatID string, now time.Time) error {
	chat := &model.Chat{ID: chatID, Participants: model.ParticipantsOf(chatID), LastActivityAt: now}
	err := e.store.Create(ctx, store.ChatKey(chatID), chat)
	if err == nil || !errorx.HasCode(err, errorx.CodeCollision) {
		return err
	}
	return e.store.UpdateChat(ctx, chatID, func(c *model.Chat) (bool, error) {
		if !now.After(c.LastActivityAt) {
			return false, nil
		}
		c.LastActivityAt = now
		return true, nil
	})
}

// Observe 接收方渲染消息时调用
// 自己发的和永久消息忽略；同一消息只调度一次删除
func (e *Engine) Observe(ctx context.Context, msg *model.Message, viewerID, owner string) error {
	if msg == nil || viewerID == "" || msg.SenderID == viewerID || !msg.EphemeralPolicy.IsEphemeral() {
		return nil
	}
	if !isParticipant(msg.ChatID, viewerID) {
		return nil
	}

	key := store.MessageKey(msg.ChatID, msg.ID)
	sched := &scheduled{chatID: msg.ChatID, msgID: msg.ID, owner: owner, kind: msg.EphemeralPolicy.Kind}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if _, ok := e.timers[key]; ok {
		e.mu.Unlock()
		return nil
	}
	e.timers[key] = sched
	e.mu.Unlock()

	err := e.store.UpdateMessage(ctx, msg.ChatID, msg.ID, func(m *model.Message) (bool, error) {
		return m.MarkViewed(viewerID), nil
	})
	if err != nil {
		e.release(key, sched)
		if errorx.IsNotFound(err) {
			return nil
		}
		return err
	}

	delay := e.deleteDelay(msg.EphemeralPolicy)
	e.mu.Lock()
	if e.timers[key] == sched {
		sched.timer = time.AfterFunc(delay, func() { e.fire(key, sched) })
		metrics.IncTimersPending()
	}
	e.mu.Unlock()
	zap.L().Debug("message deletion scheduled", zap.String("key", key), zap.Duration("delay", delay))
	return nil
}

func (e *Engine) deleteDelay(p model.EphemeralPolicy) time.Duration {
	if p.Kind == model.PolicyViewOnce {
		return e.cfg.ViewOnceGrace.Duration
	}
	if p.Duration > 0 {
		return p.Duration
	}
	return e.cfg.TimedDeleteDefault.Duration
}

// fire 定时器触发，删除已被删除的消息是无操作
func (e *Engine) fire(key string, sched *scheduled) {
	if !e.release(key, sched) {
		return
	}
	metrics.DecTimersPending()

	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	if err := e.store.DeleteMessage(ctx, sched.chatID, sched.msgID); err != nil {
		zap.L().Error("delete ephemeral message failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.AddMessageDeletions(string(sched.kind), 1)
}

// release 仅当 key 仍指向 sched 时移除，返回是否移除
func (e *Engine) release(key string, sched *scheduled) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timers[key] != sched {
		return false
	}
	delete(e.timers, key)
	return true
}

// OpenChat 打开会话时检查无活动时长，超过阈值则清空消息并重置会话
// 返回是否发生了清空
func (e *Engine) OpenChat(ctx context.Context, chatID string) (bool, error) {
	chat, err := e.store.GetChat(ctx, chatID)
	if err != nil {
		if errorx.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	threshold := e.cfg.ChatInactivity()
	if chat.IsGroup() {
		threshold = e.cfg.GroupInactivity()
	}
	now := e.now()
	if now.Sub(chat.LastActivityAt) <= threshold {
		return false, nil
	}

	e.CancelChat(chatID)
	n, err := e.store.DeleteCollection(ctx, chatID)
	if err != nil {
		return false, err
	}
	err = e.store.UpdateChat(ctx, chatID, func(c *model.Chat) (bool, error) {
		c.LastActivityAt = now
		return true, nil
	})
	if err != nil {
		return true, err
	}
	metrics.AddMessageDeletions("wipe", n)
	zap.L().Info("inactive chat wiped",
		zap.String("chat", chatID),
		zap.Int("messages", n),
		zap.Duration("idle", now.Sub(chat.LastActivityAt)),
	)
	return true, nil
}

// CancelOwner 取消某个视图调度的全部删除，返回取消数量
func (e *Engine) CancelOwner(owner string) int {
	return e.cancelWhere(func(s *scheduled) bool { return s.owner == owner })
}

// CancelChat 取消某个会话的全部删除
func (e *Engine) CancelChat(chatID string) int {
	return e.cancelWhere(func(s *scheduled) bool { return s.chatID == chatID })
}

// Pending 待执行的删除数量
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// Close 停止所有定时器，之后的 Observe 不再调度
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	n := e.cancelWhere(func(*scheduled) bool { return true })
	zap.L().Info("ephemeral engine closed", zap.Int("cancelled", n))
}

func (e *Engine) cancelWhere(match func(*scheduled) bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for key, s := range e.timers {
		if !match(s) {
			continue
		}
		if s.timer != nil {
			s.timer.Stop()
			metrics.DecTimersPending()
		}
		delete(e.timers, key)
		n++
	}
	return n
}

func isParticipant(chatID, userID string) bool {
	for _, p := range model.ParticipantsOf(chatID) {
		if p == userID {
			return true
		}
	}
	return false
}
