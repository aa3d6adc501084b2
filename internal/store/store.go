package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"ephemeral_chat/internal/infrastructure/metrics"
	"ephemeral_chat/pkg/errorx"
)

// Op 变更类型
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// Change 一次已落盘的变更，提供给观察者（变更镜像、审计等）
type Change struct {
	Key   string    `json:"key"`
	Op    Op        `json:"op"`
	Value []byte    `json:"value,omitempty"`
	At    time.Time `json:"at"`
}

// ChangeObserver 在存储锁内被调用，不得阻塞也不得访问 Store
type ChangeObserver func(Change)

// Option Store 构造选项
type Option func(*Store)

// WithObserver 追加变更观察者
func WithObserver(o ChangeObserver) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithLogger 指定日志实例，默认使用 zap.L()
func WithLogger(lg *zap.Logger) Option {
	return func(s *Store) {
		if lg != nil {
			s.log = lg
		}
	}
}

// Mutator 读改写回调，changed 为 false 时不写入也不产生事件
// 在存储锁内执行，不得访问 Store
type Mutator func(current []byte) (next []byte, changed bool, err error)

// Store 响应式文档存储
// mu 串行化所有写入与事件入队，订阅回调永远在锁外执行
type Store struct {
	backend   Backend
	bus       *bus
	mu        sync.Mutex
	observers []ChangeObserver
	log       *zap.Logger
}

// New 创建存储实例
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		bus:     newBus(),
		log:     zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put 以 JSON 写入文档（存在则覆盖）
func (s *Store) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeInvalidParam, "encode document %s", key)
	}

	s.mu.Lock()
	if err := s.backend.Set(ctx, key, data); err != nil {
		s.mu.Unlock()
		return err
	}
	pending := s.publishLocked(ctx, key, data, OpPut)
	s.mu.Unlock()

	flush(pending)
	return nil
}

// Create 仅在文档不存在时写入，已存在返回 CodeCollision
func (s *Store) Create(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeInvalidParam, "encode document %s", key)
	}

	s.mu.Lock()
	_, exists, err := s.backend.Get(ctx, key)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if exists {
		s.mu.Unlock()
		return errorx.Newf(errorx.CodeCollision, "document %s already exists", key)
	}
	if err := s.backend.Set(ctx, key, data); err != nil {
		s.mu.Unlock()
		return err
	}
	pending := s.publishLocked(ctx, key, data, OpPut)
	s.mu.Unlock()

	flush(pending)
	return nil
}

// Get 读取路径当前状态，不存在时 Exists 为 false
func (s *Store) Get(ctx context.Context, key string) (Snapshot, error) {
	return s.snapshot(ctx, key)
}

// Update 对已存在的文档做原子读改写
// 文档不存在时返回 CodeNotFound，因此已删除的文档不会被写回
func (s *Store) Update(ctx context.Context, key string, fn Mutator) error {
	s.mu.Lock()
	cur, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !ok {
		s.mu.Unlock()
		return errorx.Newf(errorx.CodeNotFound, "document %s not found", key)
	}
	next, changed, err := fn(cur)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	if err := s.backend.Set(ctx, key, next); err != nil {
		s.mu.Unlock()
		return err
	}
	pending := s.publishLocked(ctx, key, next, OpPut)
	s.mu.Unlock()

	flush(pending)
	return nil
}

// Delete 删除文档，文档不存在时什么也不做
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	removed, err := s.backend.Delete(ctx, key)
	if err != nil || !removed {
		s.mu.Unlock()
		return err
	}
	pending := s.publishLocked(ctx, key, nil, OpDelete)
	s.mu.Unlock()

	flush(pending)
	return nil
}

// DeleteCollection 删除会话下的全部消息
// 每条消息产生一次删除事件，集合路径只产生一次事件
func (s *Store) DeleteCollection(ctx context.Context, chatID string) (int, error) {
	path := MessagesPath(chatID)
	prefix := path + "/"

	s.mu.Lock()
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil || len(keys) == 0 {
		s.mu.Unlock()
		return 0, err
	}
	n, err := s.backend.DeleteByPrefix(ctx, prefix)
	if err != nil {
		s.mu.Unlock()
		return n, err
	}

	var pending []*subscription
	now := time.Now()
	for _, key := range keys {
		pending = append(pending, s.enqueueLocked(key, Snapshot{Key: key})...)
		s.notifyObserversLocked(Change{Key: key, Op: OpDelete, At: now})
	}
	pending = append(pending, s.enqueueLocked(path, Snapshot{Key: path, Collection: true, Items: [][]byte{}})...)
	s.mu.Unlock()

	flush(pending)
	return n, nil
}

// List 返回前缀下的所有文档
func (s *Store) List(ctx context.Context, prefix string) ([][]byte, error) {
	return s.backend.List(ctx, prefix)
}

// Subscribe 订阅路径
// 返回前会用当前状态同步调用一次 handler，之后每次变更调用一次，直到 cancel
func (s *Store) Subscribe(ctx context.Context, key string, handler Handler) (cancel func(), err error) {
	if handler == nil {
		return nil, errorx.Newf(errorx.CodeInvalidParam, "nil handler for %s", key)
	}

	s.mu.Lock()
	snap, err := s.snapshot(ctx, key)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sub := s.bus.add(key, handler, s.log)
	sub.delivering = true
	s.mu.Unlock()
	metrics.IncSubscriptions()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			s.bus.remove(sub)
			if sub.cancel() {
				metrics.DecSubscriptions()
			}
		})
	}

	sub.invoke(snap)
	sub.mu.Lock()
	sub.deliverLocked()
	return cancel, nil
}

// SubscriberCount 当前活跃订阅数
func (s *Store) SubscriberCount() int {
	return s.bus.count()
}

// publishLocked 入队单文档事件，必要时附带集合事件，调用方持有 s.mu
func (s *Store) publishLocked(ctx context.Context, key string, data []byte, op Op) []*subscription {
	snap := Snapshot{Key: key, Exists: op == OpPut, Value: data}
	pending := s.enqueueLocked(key, snap)

	if chatID, _, ok := ParseMessageKey(key); ok {
		path := MessagesPath(chatID)
		if s.bus.hasSubscribers(path) {
			coll, err := s.collection(ctx, chatID)
			if err != nil {
				s.log.Error("recompute message collection failed", zap.String("key", path), zap.Error(err))
			} else {
				pending = append(pending, s.enqueueLocked(path, coll)...)
			}
		}
	}

	s.notifyObserversLocked(Change{Key: key, Op: op, Value: data, At: time.Now()})
	return pending
}

func (s *Store) enqueueLocked(key string, snap Snapshot) []*subscription {
	subs := s.bus.subscribers(key)
	for _, sub := range subs {
		sub.enqueue(snap)
	}
	return subs
}

func (s *Store) notifyObserversLocked(c Change) {
	metrics.IncStoreChange(string(c.Op))
	for _, o := range s.observers {
		o(c)
	}
}

// flush 在锁外按登记顺序投递
func flush(pending []*subscription) {
	for _, sub := range pending {
		sub.drain()
	}
}

func (s *Store) snapshot(ctx context.Context, key string) (Snapshot, error) {
	if chatID, ok := isCollectionPath(key); ok {
		return s.collection(ctx, chatID)
	}
	data, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Key: key, Exists: ok, Value: data}, nil
}

// collection 读取会话的完整消息列表
func (s *Store) collection(ctx context.Context, chatID string) (Snapshot, error) {
	path := MessagesPath(chatID)
	items, err := s.backend.List(ctx, path+"/")
	if err != nil {
		return Snapshot{}, err
	}
	sortMessageDocs(items)
	return Snapshot{Key: path, Exists: len(items) > 0, Collection: true, Items: items}, nil
}

type messageOrder struct {
	ID     string    `json:"id"`
	SentAt time.Time `json:"sentAt"`
}

func sortMessageDocs(items [][]byte) {
	keys := make([]messageOrder, len(items))
	for i, item := range items {
		_ = json.Unmarshal(item, &keys[i])
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if !ka.SentAt.Equal(kb.SentAt) {
			return ka.SentAt.Before(kb.SentAt)
		}
		return ka.ID < kb.ID
	})
	sorted := make([][]byte, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
}
