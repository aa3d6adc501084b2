// Package redis 提供文档存储的 Redis 后端
// 使用 github.com/go-redis/redis/v8 作为底层客户端
package redis

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"

	"ephemeral_chat/internal/config"
	"ephemeral_chat/pkg/errorx"
)

// NewClient 按配置创建 Redis 客户端并 Ping 一次
func NewClient(ctx context.Context, conf *config.RedisConfig) (*redis.Client, error) {
	addr := conf.Host + ":" + strconv.Itoa(conf.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: conf.Password,
		DB:       conf.Db,
		// 连接池配置
		PoolSize:     50,
		MinIdleConns: 5,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errorx.Wrapf(err, errorx.CodeStoreError, "redis ping %s", addr)
	}
	return client, nil
}
