package redis

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"

	"ephemeral_chat/pkg/errorx"
)

// DocumentStore 把每个文档存成一个 String 键
// 键名为 prefix + 文档路径
type DocumentStore struct {
	client *redis.Client
	prefix string
}

// NewDocumentStore 创建 Redis 文档后端
func NewDocumentStore(client *redis.Client, prefix string) *DocumentStore {
	return &DocumentStore{client: client, prefix: prefix}
}

// Get 读取文档（键不存在返回 false 和 nil）
func (s *DocumentStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errorx.Wrapf(err, errorx.CodeStoreError, "redis get key %s", key)
	}
	return value, true, nil
}

// Set 写入文档，不设过期时间
func (s *DocumentStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeStoreError, "redis set key %s", key)
	}
	return nil
}

// Delete 使用 UNLINK 删除文档
func (s *DocumentStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Unlink(ctx, s.prefix+key).Result()
	if err != nil {
		return false, errorx.Wrapf(err, errorx.CodeStoreError, "redis unlink key %s", key)
	}
	return n > 0, nil
}

// Keys 通过 SCAN 找出前缀下的所有文档路径（已去掉 prefix）
func (s *DocumentStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapePattern(s.prefix+prefix) + "*"
	var (
		cursor uint64
		found  []string
	)
	for {
		var keys []string
		var err error
		keys, cursor, err = s.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return nil, errorx.Wrapf(err, errorx.CodeStoreError, "redis scan prefix %s", prefix)
		}
		for _, k := range keys {
			found = append(found, strings.TrimPrefix(k, s.prefix))
		}
		if cursor == 0 {
			break
		}
	}
	// SCAN 可能返回重复键
	sort.Strings(found)
	out := found[:0]
	for i, k := range found {
		if i == 0 || k != found[i-1] {
			out = append(out, k)
		}
	}
	return out, nil
}

// List 返回前缀下的所有文档
func (s *DocumentStore) List(ctx context.Context, prefix string) ([][]byte, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	values, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeStoreError, "redis mget prefix %s", prefix)
	}
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		// 扫描和读取之间被删除的键返回 nil
		str, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, []byte(str))
	}
	return out, nil
}

// DeleteByPrefix 分批 SCAN + UNLINK 删除前缀下的所有文档
func (s *DocumentStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	pattern := escapePattern(s.prefix+prefix) + "*"
	var (
		cursor uint64
		total  int
	)
	for {
		var keys []string
		var err error
		keys, cursor, err = s.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return total, errorx.Wrapf(err, errorx.CodeStoreError, "redis scan prefix %s", prefix)
		}
		if len(keys) > 0 {
			n, err := s.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return total, errorx.Wrapf(err, errorx.CodeStoreError, "redis unlink prefix %s", prefix)
			}
			total += int(n)
		}
		if cursor == 0 {
			break
		}
	}
	return total, nil
}

// escapePattern 转义 glob 元字符
func escapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
