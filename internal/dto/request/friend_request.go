package request

// FriendTargetRequest 以当前身份对 userId 发起的好友操作
// 使用位置:
//   - handler/friend_handler.go: SendRequest, Renew, Remove, Block, Unblock
type FriendTargetRequest struct {
	UserId string `json:"userId" binding:"required"`
}

// RespondFriendRequest 处理收到的好友申请
type RespondFriendRequest struct {
	RequestorId string `json:"requestorId" binding:"required"`
	// Accept 使用指针，区分 false 与未传
	Accept *bool `json:"accept" binding:"required"`
}
