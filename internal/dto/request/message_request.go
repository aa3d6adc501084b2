package request

// SendMessageRequest 发送消息
// 文本与图片的互斥校验由消息引擎完成；peerId 不能含 "/" 或会话 ID 分隔符 "_"
type SendMessageRequest struct {
	PeerId     string `json:"peerId" binding:"required,excludesall=/_"`
	Text       string `json:"text"`
	ImageRef   string `json:"imageRef"`
	Policy     string `json:"policy" binding:"omitempty,oneof=persistent viewOnce timedDelete"`
	DurationMs int64  `json:"durationMs" binding:"gte=0"`
}

// ChatRequest 按对方用户定位会话
type ChatRequest struct {
	PeerId string `form:"peerId" json:"peerId" binding:"required,excludesall=/_"`
}
