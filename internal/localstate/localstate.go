// Package localstate 保存设备本地的身份指针和昵称历史
package localstate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"ephemeral_chat/pkg/constants"
	"ephemeral_chat/pkg/errorx"
)

// State 本地持久化内容
type State struct {
	UserID      string   `toml:"userId"`
	NameHistory []string `toml:"nameHistory"` // 最近的在前
}

// Store 本地状态读写
type Store interface {
	Load() (State, error)
	Save(State) error
}

// PushName 把昵称放到历史最前面，去重并截断到 NAME_HISTORY_MAX
func PushName(history []string, name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return history
	}
	out := make([]string, 0, constants.NAME_HISTORY_MAX)
	out = append(out, name)
	for _, h := range history {
		if len(out) == constants.NAME_HISTORY_MAX {
			break
		}
		if h != name {
			out = append(out, h)
		}
	}
	return out
}

// FileStore TOML 文件实现
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore path 所在目录不存在时在首次 Save 时创建
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load 文件不存在时返回空状态
func (f *FileStore) Load() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var st State
	if _, err := toml.DecodeFile(f.path, &st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, errorx.Wrapf(err, errorx.CodeStoreError, "load local state %s", f.path)
	}
	return st, nil
}

// Save 先写临时文件再改名
func (f *FileStore) Save(st State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errorx.Wrapf(err, errorx.CodeStoreError, "create local state dir for %s", f.path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".local_state-*")
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeStoreError, "create temp for %s", f.path)
	}
	if err := toml.NewEncoder(tmp).Encode(st); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errorx.Wrapf(err, errorx.CodeStoreError, "encode local state %s", f.path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errorx.Wrapf(err, errorx.CodeStoreError, "close temp for %s", f.path)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())
		return errorx.Wrapf(err, errorx.CodeStoreError, "replace local state %s", f.path)
	}
	return nil
}

// MemoryStore 进程内实现，用于测试和多会话模拟
type MemoryStore struct {
	mu sync.Mutex
	st State
}

// NewMemoryStore 创建空的内存状态
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.st
	st.NameHistory = append([]string(nil), m.st.NameHistory...)
	return st, nil
}

func (m *MemoryStore) Save(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st
	m.st.NameHistory = append([]string(nil), st.NameHistory...)
	return nil
}
