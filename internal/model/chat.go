package model

import (
	"sort"
	"strings"
	"time"

	"ephemeral_chat/pkg/constants"
)

// Chat 会话文档，首条消息发送时惰性创建
// 无活动清空时只清消息，会话本身保留
type Chat struct {
	ID             string    `json:"id"`
	Participants   []string  `json:"participants"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// ChatID 由两个用户 ID 计算会话 ID，与参数顺序无关
func ChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, constants.CHAT_ID_SEP)
}

// ParticipantsOf 从会话 ID 还原参与者
func ParticipantsOf(chatID string) []string {
	return strings.Split(chatID, constants.CHAT_ID_SEP)
}

// IsGroup 多于两人的会话按群聊阈值清空
func (c *Chat) IsGroup() bool {
	return len(c.Participants) > 2
}

// HasParticipant 判断用户是否属于该会话
func (c *Chat) HasParticipant(userID string) bool {
	return containsString(c.Participants, userID)
}
