package respond

import "ephemeral_chat/internal/model"

// IdentityRespond 当前身份
type IdentityRespond struct {
	State       string      `json:"state"`
	User        *model.User `json:"user"`
	NameHistory []string    `json:"nameHistory"`
}

// DeepLinkRespond 去掉 addId 后的链接
type DeepLinkRespond struct {
	CleanedUrl string `json:"cleanedUrl"`
}
