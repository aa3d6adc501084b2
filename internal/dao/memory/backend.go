// Package memory 提供进程内的文档存储后端
// 默认后端，也用于所有引擎测试
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Backend 基于 map 的文档存储
type Backend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewBackend 创建空的内存后端
func NewBackend() *Backend {
	return &Backend{docs: make(map[string][]byte)}
}

// Get 读取文档，返回副本
func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.docs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set 写入文档
func (b *Backend) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	b.docs[key] = append([]byte(nil), value...)
	b.mu.Unlock()
	return nil
}

// Delete 删除文档，返回是否存在过
func (b *Backend) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.docs[key]; !ok {
		return false, nil
	}
	delete(b.docs, key)
	return true, nil
}

// List 按键名顺序返回前缀下的所有文档
func (b *Backend) List(_ context.Context, prefix string) ([][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := b.keysWithPrefix(prefix)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, append([]byte(nil), b.docs[k]...))
	}
	return out, nil
}

// Keys 返回前缀下的所有键
func (b *Backend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.keysWithPrefix(prefix), nil
}

// DeleteByPrefix 删除前缀下的所有文档，返回删除数量
func (b *Backend) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := b.keysWithPrefix(prefix)
	for _, k := range keys {
		delete(b.docs, k)
	}
	return len(keys), nil
}

func (b *Backend) keysWithPrefix(prefix string) []string {
	keys := make([]string, 0)
	for k := range b.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
