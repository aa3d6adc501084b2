// Package model 定义文档存储中的实体
// 所有实体以 JSON 文档形式写入存储后端
package model

import "time"

// User 本地身份对应的用户文档
type User struct {
	ID                     string          `json:"id"`
	DisplayName            string          `json:"displayName"`
	Avatar                 string          `json:"avatar,omitempty"`
	Online                 bool            `json:"online"`
	LastActiveAt           time.Time       `json:"lastActiveAt"`
	Friends                []Friend        `json:"friends"`
	FriendRequestsSent     []string        `json:"friendRequestsSent"`
	FriendRequestsReceived []FriendRequest `json:"friendRequestsReceived"`
	Blocked                []string        `json:"blocked"`
	TypingInChat           string          `json:"typingInChat,omitempty"` // 空串表示未在输入
}

// Friend 嵌在 User.Friends 中的好友条目
// 双方各持有一条，ExpiresAt 相同
type Friend struct {
	FriendUserID        string    `json:"friendUserId"`
	DisplayNameSnapshot string    `json:"displayNameSnapshot"`
	ExpiresAt           time.Time `json:"expiresAt"`
}

// FriendRequest 嵌在 User.FriendRequestsReceived 中的好友申请
type FriendRequest struct {
	FromUserID          string `json:"fromUserId"`
	DisplayNameSnapshot string `json:"displayNameSnapshot"`
	AvatarSnapshot      string `json:"avatarSnapshot,omitempty"`
}

// NewUser 创建一个在线、关系列表均为空的用户
func NewUser(id, displayName, avatar string, now time.Time) *User {
	return &User{
		ID:                     id,
		DisplayName:            displayName,
		Avatar:                 avatar,
		Online:                 true,
		LastActiveAt:           now,
		Friends:                []Friend{},
		FriendRequestsSent:     []string{},
		FriendRequestsReceived: []FriendRequest{},
		Blocked:                []string{},
	}
}

// Clone 深拷贝，避免调用方修改共享的切片
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Friends = append([]Friend{}, u.Friends...)
	c.FriendRequestsSent = append([]string{}, u.FriendRequestsSent...)
	c.FriendRequestsReceived = append([]FriendRequest{}, u.FriendRequestsReceived...)
	c.Blocked = append([]string{}, u.Blocked...)
	return &c
}

// FriendIndex 返回好友条目下标，不存在返回 -1
func (u *User) FriendIndex(friendID string) int {
	for i, f := range u.Friends {
		if f.FriendUserID == friendID {
			return i
		}
	}
	return -1
}

// IsFriend 是否已是好友
func (u *User) IsFriend(friendID string) bool {
	return u.FriendIndex(friendID) >= 0
}

// HasSentRequestTo 是否已向 targetID 发出申请
func (u *User) HasSentRequestTo(targetID string) bool {
	return containsString(u.FriendRequestsSent, targetID)
}

// HasRequestFrom 是否收到了 fromID 的申请
func (u *User) HasRequestFrom(fromID string) bool {
	for _, r := range u.FriendRequestsReceived {
		if r.FromUserID == fromID {
			return true
		}
	}
	return false
}

// HasBlocked 是否已拉黑 targetID
func (u *User) HasBlocked(targetID string) bool {
	return containsString(u.Blocked, targetID)
}

// UpsertFriend 写入好友条目，已存在则覆盖，保证不重复
func (u *User) UpsertFriend(f Friend) {
	if i := u.FriendIndex(f.FriendUserID); i >= 0 {
		u.Friends[i] = f
		return
	}
	u.Friends = append(u.Friends, f)
}

// RemoveFriend 删除好友条目，返回是否发生了变化
func (u *User) RemoveFriend(friendID string) bool {
	i := u.FriendIndex(friendID)
	if i < 0 {
		return false
	}
	u.Friends = append(u.Friends[:i:i], u.Friends[i+1:]...)
	return true
}

// RemoveSentRequest 删除发出的申请，返回是否发生了变化
func (u *User) RemoveSentRequest(targetID string) bool {
	next, changed := removeString(u.FriendRequestsSent, targetID)
	u.FriendRequestsSent = next
	return changed
}

// RemoveReceivedRequest 删除收到的申请，返回是否发生了变化
func (u *User) RemoveReceivedRequest(fromID string) bool {
	next := make([]FriendRequest, 0, len(u.FriendRequestsReceived))
	for _, r := range u.FriendRequestsReceived {
		if r.FromUserID != fromID {
			next = append(next, r)
		}
	}
	changed := len(next) != len(u.FriendRequestsReceived)
	u.FriendRequestsReceived = next
	return changed
}

// Unblock 取消拉黑，返回是否发生了变化
func (u *User) Unblock(targetID string) bool {
	next, changed := removeString(u.Blocked, targetID)
	u.Blocked = next
	return changed
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) ([]string, bool) {
	next := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			next = append(next, v)
		}
	}
	return next, len(next) != len(list)
}
