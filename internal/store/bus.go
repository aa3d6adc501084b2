package store

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"ephemeral_chat/internal/infrastructure/metrics"
)

// Snapshot 某个路径在一次变更之后的完整状态
// 单文档路径使用 Value，消息集合路径使用 Items
type Snapshot struct {
	Key        string
	Exists     bool
	Value      []byte
	Collection bool
	Items      [][]byte // 按 sentAt、id 升序
}

// Handler 订阅回调，不得修改 Snapshot 中的字节
type Handler func(Snapshot)

// subscription 每个订阅一个 FIFO 收件箱，同一时刻只有一个投递者
// 回调中再次写入存储时，新事件进入收件箱，在当前回调返回后投递
type subscription struct {
	id      uint64
	key     string
	handler Handler
	log     *zap.Logger

	mu         sync.Mutex
	inbox      []Snapshot
	delivering bool
	cancelled  bool
}

func (s *subscription) enqueue(snap Snapshot) {
	s.mu.Lock()
	if !s.cancelled {
		s.inbox = append(s.inbox, snap)
	}
	s.mu.Unlock()
}

// drain 如果已有投递者在工作则直接返回，由它负责投递
func (s *subscription) drain() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.deliverLocked()
}

// deliverLocked 调用方持有 s.mu 且已置 delivering，返回前释放锁
func (s *subscription) deliverLocked() {
	for !s.cancelled && len(s.inbox) > 0 {
		snap := s.inbox[0]
		s.inbox[0] = Snapshot{}
		s.inbox = s.inbox[1:]
		s.mu.Unlock()
		s.invoke(snap)
		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}

func (s *subscription) invoke(snap Snapshot) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.IncHandlerPanic()
			s.log.Error("subscriber panic",
				zap.String("key", s.key),
				zap.Uint64("subscription", s.id),
				zap.Any("recover", rec),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	s.handler(snap)
}

// cancel 返回 false 表示已经取消过
func (s *subscription) cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return false
	}
	s.cancelled = true
	s.inbox = nil
	return true
}

// bus 按路径登记订阅，保持登记顺序
type bus struct {
	mu   sync.Mutex
	next uint64
	subs map[string][]*subscription
}

func newBus() *bus {
	return &bus{subs: make(map[string][]*subscription)}
}

func (b *bus) add(key string, handler Handler, log *zap.Logger) *subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	sub := &subscription{id: b.next, key: key, handler: handler, log: log}
	b.subs[key] = append(b.subs[key], sub)
	return sub
}

func (b *bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.key]
	for i, s := range list {
		if s == sub {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, sub.key)
		return
	}
	b.subs[sub.key] = list
}

// subscribers 返回路径上订阅的副本
func (b *bus) subscribers(key string) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*subscription(nil), b.subs[key]...)
}

func (b *bus) hasSubscribers(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[key]) > 0
}

func (b *bus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, list := range b.subs {
		n += len(list)
	}
	return n
}
