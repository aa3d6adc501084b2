package redis

import (
	"context"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实 Redis，设置 REDIS_ADDR 后运行
func newTestStore(t *testing.T) *DocumentStore {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	prefix := "test:" + uuid.NewString() + ":"
	s := NewDocumentStore(client, prefix)
	t.Cleanup(func() { _, _ = s.DeleteByPrefix(context.Background(), "") })
	return s
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Get(ctx, "users/1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "users/1", []byte(`{"id":"1"}`)))
	v, ok, err := s.Get(ctx, "users/1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":"1"}`, string(v))

	removed, err := s.Delete(ctx, "users/1")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestDocumentStorePrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Set(ctx, "chats/1_2/messages/a", []byte("a")))
	require.NoError(t, s.Set(ctx, "chats/1_2/messages/b", []byte("b")))
	require.NoError(t, s.Set(ctx, "chats/1_3/messages/c", []byte("c")))

	keys, err := s.Keys(ctx, "chats/1_2/messages/")
	require.NoError(t, err)
	assert.Equal(t, []string{"chats/1_2/messages/a", "chats/1_2/messages/b"}, keys)

	list, err := s.List(ctx, "chats/1_2/messages/")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := s.DeleteByPrefix(ctx, "chats/1_2/messages/")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEscapePattern(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, escapePattern("a*b?c[d]"))
}
