package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	_, ok, err := b.Get(ctx, "users/1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "users/1", []byte(`{"id":"1"}`)))
	v, ok, err := b.Get(ctx, "users/1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":"1"}`, string(v))

	// 返回值是副本
	v[0] = 'x'
	v2, _, _ := b.Get(ctx, "users/1")
	assert.Equal(t, byte('{'), v2[0])

	removed, err := b.Delete(ctx, "users/1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = b.Delete(ctx, "users/1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestBackendPrefix(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	require.NoError(t, b.Set(ctx, "chats/1_2/messages/b", []byte("b")))
	require.NoError(t, b.Set(ctx, "chats/1_2/messages/a", []byte("a")))
	require.NoError(t, b.Set(ctx, "chats/1_3/messages/c", []byte("c")))

	list, err := b.List(ctx, "chats/1_2/messages/")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, list)

	n, err := b.DeleteByPrefix(ctx, "chats/1_2/messages/")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := b.Keys(ctx, "chats/")
	require.NoError(t, err)
	assert.Equal(t, []string{"chats/1_3/messages/c"}, keys)
}
