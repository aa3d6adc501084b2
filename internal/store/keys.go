package store

import "strings"

const (
	usersRoot       = "users/"
	chatsRoot       = "chats/"
	messagesSegment = "/messages"
)

// UserKey users/<id>
func UserKey(userID string) string {
	return usersRoot + userID
}

// ChatKey chats/<chatId>
func ChatKey(chatID string) string {
	return chatsRoot + chatID
}

// MessagesPath 会话消息集合路径 chats/<chatId>/messages
// 订阅该路径得到按 sentAt、id 排序的完整消息列表
func MessagesPath(chatID string) string {
	return chatsRoot + chatID + messagesSegment
}

// MessageKey chats/<chatId>/messages/<msgId>
func MessageKey(chatID, msgID string) string {
	return MessagesPath(chatID) + "/" + msgID
}

// ParseMessageKey 拆出会话 ID 和消息 ID
func ParseMessageKey(key string) (chatID, msgID string, ok bool) {
	if !strings.HasPrefix(key, chatsRoot) {
		return "", "", false
	}
	rest := strings.TrimPrefix(key, chatsRoot)
	i := strings.Index(rest, messagesSegment+"/")
	if i <= 0 {
		return "", "", false
	}
	chatID = rest[:i]
	msgID = rest[i+len(messagesSegment)+1:]
	if msgID == "" || strings.Contains(msgID, "/") {
		return "", "", false
	}
	return chatID, msgID, true
}

// isCollectionPath 判断是否为消息集合路径
func isCollectionPath(key string) (chatID string, ok bool) {
	if !strings.HasPrefix(key, chatsRoot) || !strings.HasSuffix(key, messagesSegment) {
		return "", false
	}
	chatID = strings.TrimSuffix(strings.TrimPrefix(key, chatsRoot), messagesSegment)
	if chatID == "" || strings.Contains(chatID, "/") {
		return "", false
	}
	return chatID, true
}
