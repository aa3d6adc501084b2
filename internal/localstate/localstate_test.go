package localstate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushName(t *testing.T) {
	var h []string
	h = PushName(h, "User0001")
	h = PushName(h, "alice")
	h = PushName(h, "bob")
	assert.Equal(t, []string{"bob", "alice", "User0001"}, h)

	h = PushName(h, "carol")
	assert.Equal(t, []string{"carol", "bob", "alice"}, h)

	// 重复名移到最前而不是重复出现
	h = PushName(h, "alice")
	assert.Equal(t, []string{"alice", "carol", "bob"}, h)

	h = PushName(h, "   ")
	assert.Equal(t, []string{"alice", "carol", "bob"}, h)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.toml")
	fs := NewFileStore(path)

	st, err := fs.Load()
	require.NoError(t, err)
	assert.Empty(t, st.UserID)

	want := State{UserID: "12345678", NameHistory: []string{"bob", "alice"}}
	require.NoError(t, fs.Save(want))

	got, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, fs.Save(State{}))
	got, err = fs.Load()
	require.NoError(t, err)
	assert.Empty(t, got.UserID)
}

func TestMemoryStoreCopies(t *testing.T) {
	m := NewMemoryStore()
	h := []string{"a"}
	require.NoError(t, m.Save(State{UserID: "1", NameHistory: h}))
	h[0] = "b"
	st, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, st.NameHistory)
}
