package store

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemeral_chat/internal/dao/memory"
	"ephemeral_chat/internal/model"
	"ephemeral_chat/pkg/errorx"
)

type counter struct {
	N int `json:"n"`
}

func newTestStore(opts ...Option) *Store {
	return New(memory.NewBackend(), opts...)
}

func decodeN(t *testing.T, snap Snapshot) int {
	if !snap.Exists {
		return -1
	}
	var c counter
	require.NoError(t, json.Unmarshal(snap.Value, &c))
	return c.N
}

func TestSubscribeInitialSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	var got []Snapshot
	cancel, err := s.Subscribe(ctx, "users/none", func(snap Snapshot) { got = append(got, snap) })
	require.NoError(t, err)
	defer cancel()
	// 返回前已同步回调
	require.Len(t, got, 1)
	assert.False(t, got[0].Exists)

	require.NoError(t, s.Put(ctx, "users/1", counter{N: 1}))
	var present []Snapshot
	cancel2, err := s.Subscribe(ctx, "users/1", func(snap Snapshot) { present = append(present, snap) })
	require.NoError(t, err)
	defer cancel2()
	require.Len(t, present, 1)
	assert.True(t, present[0].Exists)
	assert.Equal(t, 1, decodeN(t, present[0]))
}

func TestEveryChangeDeliveredInOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	var seen []int
	cancel, err := s.Subscribe(ctx, "k", func(snap Snapshot) { seen = append(seen, decodeN(t, snap)) })
	require.NoError(t, err)
	defer cancel()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Put(ctx, "k", counter{N: i}))
	}
	require.NoError(t, s.Delete(ctx, "k"))
	// 删除不存在的键不产生事件
	require.NoError(t, s.Delete(ctx, "k"))

	assert.Equal(t, []int{-1, 1, 2, 3, 4, 5, -1}, seen)
}

func TestSubscribersNotifiedInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		cancel, err := s.Subscribe(ctx, "k", func(Snapshot) { order = append(order, name) })
		require.NoError(t, err)
		defer cancel()
	}
	order = nil
	require.NoError(t, s.Put(ctx, "k", counter{N: 1}))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	calls := 0
	cancel, err := s.Subscribe(ctx, "k", func(Snapshot) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 1, s.SubscriberCount())

	cancel()
	cancel()
	require.NoError(t, s.Put(ctx, "k", counter{N: 1}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.SubscriberCount())
}

func TestReentrantWriteDeliveredAfterHandlerReturns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	var trace []string
	cancel, err := s.Subscribe(ctx, "k", func(snap Snapshot) {
		n := decodeN(t, snap)
		trace = append(trace, "enter "+strconv.Itoa(n))
		if n >= 0 && n < 3 {
			require.NoError(t, s.Put(ctx, "k", counter{N: n + 1}))
		}
		trace = append(trace, "exit "+strconv.Itoa(n))
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.Put(ctx, "k", counter{N: 1}))
	assert.Equal(t, []string{
		"enter -1", "exit -1",
		"enter 1", "exit 1",
		"enter 2", "exit 2",
		"enter 3", "exit 3",
	}, trace)
}

func TestHandlerPanicIsContained(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	cancel1, err := s.Subscribe(ctx, "k", func(snap Snapshot) {
		if snap.Exists {
			panic("boom")
		}
	})
	require.NoError(t, err)
	defer cancel1()

	var seen []int
	cancel2, err := s.Subscribe(ctx, "k", func(snap Snapshot) { seen = append(seen, decodeN(t, snap)) })
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, s.Put(ctx, "k", counter{N: 1}))
	require.NoError(t, s.Put(ctx, "k", counter{N: 2}))
	assert.Equal(t, []int{-1, 1, 2}, seen)
}

func TestUpdateNeverResurrects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	err := s.Update(ctx, "k", func(cur []byte) ([]byte, bool, error) {
		t.Fatal("mutator must not run for absent key")
		return nil, false, nil
	})
	assert.True(t, errorx.IsNotFound(err))

	snap, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestUpdateUnchangedEmitsNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Put(ctx, "k", counter{N: 1}))

	calls := 0
	cancel, err := s.Subscribe(ctx, "k", func(Snapshot) { calls++ })
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.Update(ctx, "k", func(cur []byte) ([]byte, bool, error) { return nil, false, nil }))
	assert.Equal(t, 1, calls)
}

func TestMessageCollectionOrderedAndWiped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	chatID := model.ChatID("1", "2")

	var lists [][]string
	cancel, err := s.SubscribeMessages(ctx, chatID, func(msgs []*model.Message) {
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, m.ID)
		}
		lists = append(lists, ids)
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.PutMessage(ctx, &model.Message{ID: "b", ChatID: chatID, SentAt: base}))
	require.NoError(t, s.PutMessage(ctx, &model.Message{ID: "a", ChatID: chatID, SentAt: base}))
	require.NoError(t, s.PutMessage(ctx, &model.Message{ID: "0", ChatID: chatID, SentAt: base.Add(time.Second)}))

	var msgDeletes int
	cancelMsg, err := s.Subscribe(ctx, MessageKey(chatID, "a"), func(snap Snapshot) {
		if !snap.Exists {
			msgDeletes++
		}
	})
	require.NoError(t, err)
	defer cancelMsg()

	n, err := s.DeleteCollection(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	// 集合为空时不再产生事件
	n, err = s.DeleteCollection(ctx, chatID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, [][]string{
		{},
		{"b"},
		{"a", "b"},
		{"a", "b", "0"},
		{},
	}, lists)
	assert.Equal(t, 1, msgDeletes)
}

func TestObserverSeesEveryChange(t *testing.T) {
	ctx := context.Background()
	var changes []Change
	s := newTestStore(WithObserver(func(c Change) { changes = append(changes, c) }))

	require.NoError(t, s.Put(ctx, "k", counter{N: 1}))
	require.NoError(t, s.Delete(ctx, "k"))
	require.Len(t, changes, 2)
	assert.Equal(t, OpPut, changes[0].Op)
	assert.Equal(t, OpDelete, changes[1].Op)
	assert.Equal(t, "k", changes[1].Key)
}

func TestConcurrentUpdatesKeepPerKeyOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Put(ctx, "k", counter{N: 0}))

	var mu sync.Mutex
	var seen []int
	cancel, err := s.Subscribe(ctx, "k", func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, decodeN(t, snap))
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := s.Update(ctx, "k", func(cur []byte) ([]byte, bool, error) {
					var c counter
					if err := json.Unmarshal(cur, &c); err != nil {
						return nil, false, err
					}
					c.N++
					next, err := json.Marshal(c)
					return next, true, err
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, writers*perWriter+1)
	for i, n := range seen {
		assert.Equal(t, i, n)
	}
}

func TestParseMessageKey(t *testing.T) {
	chatID, msgID, ok := ParseMessageKey(MessageKey("1_2", "99"))
	assert.True(t, ok)
	assert.Equal(t, "1_2", chatID)
	assert.Equal(t, "99", msgID)

	_, _, ok = ParseMessageKey(ChatKey("1_2"))
	assert.False(t, ok)
	_, _, ok = ParseMessageKey(UserKey("1"))
	assert.False(t, ok)

	id, ok := isCollectionPath(MessagesPath("1_2"))
	assert.True(t, ok)
	assert.Equal(t, "1_2", id)
}

func TestCreateRejectsExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Create(ctx, "k", counter{N: 1}))
	err := s.Create(ctx, "k", counter{N: 2})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeCollision, errorx.GetCode(err))

	snap, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, decodeN(t, snap))
}
