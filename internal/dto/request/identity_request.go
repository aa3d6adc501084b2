package request

// UpdateDisplayNameRequest 修改昵称
// 使用位置:
//   - handler/identity_handler.go: UpdateDisplayName
type UpdateDisplayNameRequest struct {
	DisplayName string `json:"displayName" binding:"required,max=64"`
}

// UpdateAvatarRequest 修改头像，为空时重新生成
type UpdateAvatarRequest struct {
	Avatar string `json:"avatar" binding:"omitempty,url"`
}

// ConsumeDeepLinkRequest 消费分享链接
type ConsumeDeepLinkRequest struct {
	Url string `json:"url" binding:"required"`
}
