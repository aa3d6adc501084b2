// Package chatview 维护单个会话的物化视图
// 视图只在订阅回调中更新，渲染方通过 onChange 拿到完整状态
package chatview

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemeral_chat/internal/model"
	"ephemeral_chat/internal/service/ephemeral"
	"ephemeral_chat/internal/store"
	"ephemeral_chat/pkg/constants"
	"ephemeral_chat/pkg/errorx"
)

// Deps 视图依赖
type Deps struct {
	Store    *store.Store
	Engine   *ephemeral.Engine
	Debounce time.Duration // 清除输入状态前的空闲时间
}

// Update 推送给渲染方的完整状态
type Update struct {
	ChatID     string           `json:"chatId"`
	Messages   []*model.Message `json:"messages"`
	Peer       *model.User      `json:"peer,omitempty"`
	PeerTyping bool             `json:"peerTyping"`
	Wiped      bool             `json:"wiped"`
}

// View 一个打开中的会话
type View struct {
	deps     Deps
	viewerID string
	peerID   string
	chatID   string
	owner    string
	onChange func(Update)

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	messages    []*model.Message
	peer        *model.User
	peerTyping  bool
	wiped       bool
	typingTimer *time.Timer
	unsubs      []func()
	closed      bool
}

// Open 打开会话：先做无活动检查，再订阅消息集合和对方用户文档
// onChange 可为 nil
func Open(ctx context.Context, deps Deps, viewerID, peerID string, onChange func(Update)) (*View, error) {
	if viewerID == "" || peerID == "" || viewerID == peerID {
		return nil, errorx.ErrInvalidParam
	}
	if strings.ContainsAny(peerID, "/"+constants.CHAT_ID_SEP) {
		return nil, errorx.Newf(errorx.CodeInvalidParam, "非法用户 ID %q", peerID)
	}
	chatID := model.ChatID(viewerID, peerID)
	wiped, err := deps.Engine.OpenChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	vctx, cancel := context.WithCancel(context.Background())
	v := &View{
		deps:     deps,
		viewerID: viewerID,
		peerID:   peerID,
		chatID:   chatID,
		owner:    "view-" + uuid.NewString(),
		onChange: onChange,
		ctx:      vctx,
		cancel:   cancel,
		wiped:    wiped,
	}

	unsubMsgs, err := deps.Store.SubscribeMessages(ctx, chatID, v.onMessages)
	if err != nil {
		cancel()
		return nil, err
	}
	unsubPeer, err := deps.Store.SubscribeUser(ctx, peerID, v.onPeer)
	if err != nil {
		unsubMsgs()
		deps.Engine.CancelOwner(v.owner)
		cancel()
		return nil, err
	}

	v.mu.Lock()
	v.unsubs = append(v.unsubs, unsubMsgs, unsubPeer)
	v.mu.Unlock()
	zap.L().Debug("chat view opened", zap.String("chat", chatID), zap.String("owner", v.owner), zap.Bool("wiped", wiped))
	return v, nil
}

func (v *View) onMessages(msgs []*model.Message) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.messages = msgs
	v.mu.Unlock()

	// 渲染即视为查看
	for _, m := range msgs {
		if err := v.deps.Engine.Observe(v.ctx, m, v.viewerID, v.owner); err != nil {
			zap.L().Warn("observe message failed", zap.String("msg", m.ID), zap.Error(err))
		}
	}
	v.emit()
}

func (v *View) onPeer(u *model.User) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.peer = u
	v.peerTyping = u != nil && u.TypingInChat == v.chatID
	v.mu.Unlock()
	v.emit()
}

func (v *View) emit() {
	if v.onChange == nil {
		return
	}
	v.onChange(v.snapshot())
}

func (v *View) snapshot() Update {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Update{
		ChatID:     v.chatID,
		Messages:   append([]*model.Message(nil), v.messages...),
		Peer:       v.peer.Clone(),
		PeerTyping: v.peerTyping,
		Wiped:      v.wiped,
	}
}

// State 当前物化状态
func (v *View) State() Update {
	return v.snapshot()
}

// Messages 当前消息列表，按 sentAt、id 升序
func (v *View) Messages() []*model.Message {
	return v.snapshot().Messages
}

// PeerTyping 对方是否正在本会话输入
func (v *View) PeerTyping() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.peerTyping
}

// ChatID 会话 ID
func (v *View) ChatID() string {
	return v.chatID
}

// Owner 视图在消息引擎中的定时器归属
func (v *View) Owner() string {
	return v.owner
}

// Send 以当前用户身份向对方发送消息
func (v *View) Send(ctx context.Context, in ephemeral.SendInput) (*model.Message, error) {
	in.SenderID = v.viewerID
	in.RecipientID = v.peerID
	return v.deps.Engine.Send(ctx, in)
}

// Typing 草稿非空时立即标记输入中，清空后经过防抖时间再清除
func (v *View) Typing(ctx context.Context, draft string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	if strings.TrimSpace(draft) != "" {
		if v.typingTimer != nil {
			v.typingTimer.Stop()
			v.typingTimer = nil
		}
		v.mu.Unlock()
		return v.setTyping(ctx, v.chatID)
	}
	if v.typingTimer != nil {
		v.typingTimer.Stop()
	}
	v.typingTimer = time.AfterFunc(v.deps.Debounce, v.clearTypingAfterIdle)
	v.mu.Unlock()
	return nil
}

func (v *View) clearTypingAfterIdle() {
	v.mu.Lock()
	v.typingTimer = nil
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return
	}
	if err := v.setTyping(v.ctx, ""); err != nil {
		zap.L().Warn("clear typing flag failed", zap.String("user", v.viewerID), zap.Error(err))
	}
}

// setTyping 只有值变化时才写入
func (v *View) setTyping(ctx context.Context, chatID string) error {
	err := v.deps.Store.UpdateUser(ctx, v.viewerID, func(u *model.User) (bool, error) {
		if chatID == "" && u.TypingInChat != v.chatID {
			return false, nil
		}
		if u.TypingInChat == chatID {
			return false, nil
		}
		u.TypingInChat = chatID
		return true, nil
	})
	if errorx.IsNotFound(err) {
		return nil
	}
	return err
}

// Close 释放订阅，取消本视图调度的删除和输入计时，清除输入状态
func (v *View) Close(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	unsubs := v.unsubs
	v.unsubs = nil
	if v.typingTimer != nil {
		v.typingTimer.Stop()
		v.typingTimer = nil
	}
	v.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	n := v.deps.Engine.CancelOwner(v.owner)
	v.cancel()
	zap.L().Debug("chat view closed", zap.String("chat", v.chatID), zap.Int("cancelled_deletions", n))
	return v.setTyping(ctx, "")
}
