package model

import "time"

// PolicyKind 消息保留策略
type PolicyKind string

const (
	PolicyPersistent  PolicyKind = "persistent"  // 永久保留
	PolicyViewOnce    PolicyKind = "viewOnce"    // 非发送者首次查看后短暂宽限即删除
	PolicyTimedDelete PolicyKind = "timedDelete" // 非发送者首次查看后定时删除
)

// EphemeralPolicy 消息的保留策略，非 persistent 时创建后不可更改
type EphemeralPolicy struct {
	Kind     PolicyKind    `json:"kind"`
	Duration time.Duration `json:"duration,omitempty"` // 仅 timedDelete 使用
}

// Persistent 永久消息策略
func Persistent() EphemeralPolicy { return EphemeralPolicy{Kind: PolicyPersistent} }

// ViewOnce 阅后即焚策略
func ViewOnce() EphemeralPolicy { return EphemeralPolicy{Kind: PolicyViewOnce} }

// TimedDelete 定时销毁策略
func TimedDelete(d time.Duration) EphemeralPolicy {
	return EphemeralPolicy{Kind: PolicyTimedDelete, Duration: d}
}

// IsEphemeral 是否需要在查看后销毁
func (p EphemeralPolicy) IsEphemeral() bool {
	return p.Kind == PolicyViewOnce || p.Kind == PolicyTimedDelete
}

// Message 消息文档，Text 与 ImageRef 互斥
type Message struct {
	ID              string          `json:"id"`
	ChatID          string          `json:"chatId"`
	SenderID        string          `json:"senderId"`
	Text            string          `json:"text,omitempty"`
	ImageRef        string          `json:"imageRef,omitempty"`
	SentAt          time.Time       `json:"sentAt"`
	EphemeralPolicy EphemeralPolicy `json:"ephemeralPolicy"`
	ViewedBy        []string        `json:"viewedBy"`
}

// HasImage 是否为图片消息
func (m *Message) HasImage() bool {
	return m.ImageRef != ""
}

// ViewedByUser 是否已被 userID 查看
func (m *Message) ViewedByUser(userID string) bool {
	return containsString(m.ViewedBy, userID)
}

// MarkViewed 追加查看者，返回是否发生了变化
func (m *Message) MarkViewed(userID string) bool {
	if m.ViewedByUser(userID) {
		return false
	}
	m.ViewedBy = append(m.ViewedBy, userID)
	return true
}
