// Package storetest 提供测试用的存储后端包装
package storetest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ephemeral_chat/internal/dao/memory"
	"ephemeral_chat/pkg/errorx"
)

// ErrInjected 注入的写失败
var ErrInjected = errors.New("injected backend failure")

// FlakyBackend 在内存后端之上按键前缀注入写失败
type FlakyBackend struct {
	*memory.Backend

	mu       sync.Mutex
	failKeys map[string]int // 键 -> 剩余失败次数，-1 表示一直失败
}

// NewFlakyBackend 创建包装后的内存后端
func NewFlakyBackend() *FlakyBackend {
	return &FlakyBackend{Backend: memory.NewBackend(), failKeys: make(map[string]int)}
}

// FailSet 让 key 的后续 times 次写入失败，times 为 -1 时一直失败
func (f *FlakyBackend) FailSet(key string, times int) {
	f.mu.Lock()
	f.failKeys[key] = times
	f.mu.Unlock()
}

// Heal 取消所有注入
func (f *FlakyBackend) Heal() {
	f.mu.Lock()
	f.failKeys = make(map[string]int)
	f.mu.Unlock()
}

// Set 命中注入时返回 CodeStoreError
func (f *FlakyBackend) Set(ctx context.Context, key string, value []byte) error {
	if f.shouldFail(key) {
		return errorx.Wrapf(ErrInjected, errorx.CodeStoreError, "set %s", key)
	}
	return f.Backend.Set(ctx, key, value)
}

func (f *FlakyBackend) shouldFail(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, n := range f.failKeys {
		if !strings.HasPrefix(key, k) || n == 0 {
			continue
		}
		if n > 0 {
			f.failKeys[k] = n - 1
		}
		return true
	}
	return false
}
