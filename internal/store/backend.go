// Package store 实现响应式文档存储和订阅总线
// 所有写入经由 Store 串行化，变更按写入顺序推送给订阅者
package store

import "context"

// Backend 文档存储底座，memory / redis / gormstore 各有实现
// 实现需要并发安全，值为 JSON 字节
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	List(ctx context.Context, prefix string) ([][]byte, error)
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}
