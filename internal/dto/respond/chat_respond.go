package respond

import "ephemeral_chat/internal/model"

// ChatRespond 会话快照
type ChatRespond struct {
	ChatId   string           `json:"chatId"`
	Wiped    bool             `json:"wiped"`
	Messages []*model.Message `json:"messages"`
}

// SweepRespond 过期好友清理结果
type SweepRespond struct {
	Removed int `json:"removed"`
}
