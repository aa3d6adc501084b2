// Package deeplink 处理分享链接 ?addId=<userId>
package deeplink

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"ephemeral_chat/pkg/constants"
	"ephemeral_chat/pkg/errorx"
)

// RequestSender 发送好友申请
type RequestSender interface {
	SendRequest(ctx context.Context, fromID, toID string) error
}

// Consumer 每个进程只消费一次分享链接
type Consumer struct {
	sender RequestSender
	once   sync.Once
}

// NewConsumer 构造函数
func NewConsumer(sender RequestSender) *Consumer {
	return &Consumer{sender: sender}
}

// Consume 读取 addId 并向其发送好友申请，返回去掉 addId 后的链接
// 第二次及以后调用只清理链接，不再发送申请
func (c *Consumer) Consume(ctx context.Context, rawURL, currentUserID string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, errorx.Wrapf(err, errorx.CodeInvalidParam, "invalid link %q", rawURL)
	}
	q := u.Query()
	target := q.Get(constants.DEEP_LINK_PARAM)
	q.Del(constants.DEEP_LINK_PARAM)
	u.RawQuery = q.Encode()
	cleaned := u.String()

	var sendErr error
	c.once.Do(func() {
		if target == "" || target == currentUserID || currentUserID == "" {
			return
		}
		zap.L().Info("deep link friend request", zap.String("from", currentUserID), zap.String("to", target))
		sendErr = c.sender.SendRequest(ctx, currentUserID, target)
	})
	return cleaned, sendErr
}
