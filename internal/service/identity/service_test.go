package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemeral_chat/internal/config"
	"ephemeral_chat/internal/dao/memory"
	"ephemeral_chat/internal/localstate"
	"ephemeral_chat/internal/model"
	"ephemeral_chat/internal/service/friendship"
	"ephemeral_chat/internal/store"
	"ephemeral_chat/pkg/errorx"
)

func sequence(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestBootCreatesIdentity(t *testing.T) {
	ctx := context.Background()
	st := store.New(memory.NewBackend())
	local := localstate.NewMemoryStore()
	svc := NewService(st, local, nil)

	assert.Equal(t, NoIdentity, svc.State())
	u, err := svc.Boot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Active, svc.State())
	assert.Len(t, u.ID, 8)
	assert.True(t, strings.HasPrefix(u.DisplayName, "User"))
	assert.True(t, strings.HasPrefix(u.Avatar, "data:image/svg+xml;base64,"))
	assert.True(t, u.Online)
	assert.Empty(t, u.Friends)

	saved, err := local.Load()
	require.NoError(t, err)
	assert.Equal(t, u.ID, saved.UserID)
	assert.Equal(t, []string{u.DisplayName}, saved.NameHistory)

	stored, err := st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.DisplayName, stored.DisplayName)
}

func TestBootRestoresExistingIdentity(t *testing.T) {
	ctx := context.Background()
	st := store.New(memory.NewBackend())
	local := localstate.NewMemoryStore()

	first, err := NewService(st, local, nil).Boot(ctx)
	require.NoError(t, err)

	svc := NewService(st, local, nil)
	again, err := svc.Boot(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.DisplayName, again.DisplayName)
}

func TestBootReplacesDanglingPointer(t *testing.T) {
	ctx := context.Background()
	st := store.New(memory.NewBackend())
	local := localstate.NewMemoryStore()
	require.NoError(t, local.Save(localstate.State{UserID: "00000000"}))

	svc := NewService(st, local, nil, WithIDGenerator(sequence("12345678")))
	u, err := svc.Boot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "12345678", u.ID)
}

func TestCollisionIsRetriedSilently(t *testing.T) {
	ctx := context.Background()
	st := store.New(memory.NewBackend())
	require.NoError(t, st.PutUser(ctx, model.NewUser("11111111", "taken", "", time.Now())))

	svc := NewService(st, localstate.NewMemoryStore(), nil,
		WithIDGenerator(sequence("11111111", "11111111", "22222222")))
	u, err := svc.Boot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "22222222", u.ID)

	taken, err := st.GetUser(ctx, "11111111")
	require.NoError(t, err)
	assert.Equal(t, "taken", taken.DisplayName)
}

func TestCollisionExhaustion(t *testing.T) {
	ctx := context.Background()
	st := store.New(memory.NewBackend())
	require.NoError(t, st.PutUser(ctx, model.NewUser("11111111", "taken", "", time.Now())))

	svc := NewService(st, localstate.NewMemoryStore(), nil, WithIDGenerator(sequence("11111111")))
	_, err := svc.Boot(ctx)
	require.Error(t, err)
	assert.Equal(t, errorx.CodeServerBusy, errorx.GetCode(err))
	assert.Equal(t, NoIdentity, svc.State())
}

func TestCurrentMirrorsStore(t *testing.T) {
	ctx := context.Background()
	st := store.New(memory.NewBackend())
	svc := NewService(st, localstate.NewMemoryStore(), nil)
	u, err := svc.Boot(ctx)
	require.NoError(t, err)

	require.NoError(t, st.UpdateUser(ctx, u.ID, func(u *model.User) (bool, error) {
		u.FriendRequestsSent = append(u.FriendRequestsSent, "99999999")
		return true, nil
	}))
	assert.Equal(t, []string{"99999999"}, svc.Current().FriendRequestsSent)
}

func TestUpdateDisplayNameKeepsHistory(t *testing.T) {
	ctx := context.Background()
	st := store.New(memory.NewBackend())
	local := localstate.NewMemoryStore()
	svc := NewService(st, local, nil, WithNameGenerator(func() string { return "User0001" }))
	_, err := svc.Boot(ctx)
	require.NoError(t, err)

	assert.Error(t, svc.UpdateDisplayName(ctx, "   "))

	names := []string{gofakeit.FirstName() + "1", gofakeit.FirstName() + "2", gofakeit.FirstName() + "3"}
	for _, n := range names {
		require.NoError(t, svc.UpdateDisplayName(ctx, "  "+n+" "))
	}
	assert.Equal(t, names[2], svc.Current().DisplayName)
	assert.Equal(t, []string{names[2], names[1], names[0]}, svc.NameHistory())

	saved, err := local.Load()
	require.NoError(t, err)
	assert.Equal(t, svc.NameHistory(), saved.NameHistory)
}

func TestUpdateAvatar(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.New(memory.NewBackend()), localstate.NewMemoryStore(), nil)
	u, err := svc.Boot(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateAvatar(ctx, "https://example.com/a.png"))
	assert.Equal(t, "https://example.com/a.png", svc.Current().Avatar)
	require.NoError(t, svc.UpdateAvatar(ctx, ""))
	assert.Equal(t, u.Avatar, svc.Current().Avatar)
}

func TestResetIdentityCascades(t *testing.T) {
	ctx := context.Background()
	st := store.New(memory.NewBackend())
	friends := friendship.NewService(st, config.Default().LifecycleConfig)
	local := localstate.NewMemoryStore()
	svc := NewService(st, local, friends, WithIDGenerator(sequence("11111111", "33333333")))

	me, err := svc.Boot(ctx)
	require.NoError(t, err)
	require.NoError(t, st.PutUser(ctx, model.NewUser("22222222", "peer", "", time.Now())))
	require.NoError(t, friends.SendRequest(ctx, "22222222", me.ID))
	require.NoError(t, friends.RespondToRequest(ctx, me.ID, "22222222", true))

	subsBefore := st.SubscriberCount()
	fresh, err := svc.ResetIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "33333333", fresh.ID)
	assert.Equal(t, subsBefore, st.SubscriberCount())

	_, err = st.GetUser(ctx, me.ID)
	assert.True(t, errorx.IsNotFound(err))
	peer, err := st.GetUser(ctx, "22222222")
	require.NoError(t, err)
	assert.Empty(t, peer.Friends)

	saved, err := local.Load()
	require.NoError(t, err)
	assert.Equal(t, "33333333", saved.UserID)
}

func TestHeartbeatAndClose(t *testing.T) {
	ctx := context.Background()
	st := store.New(memory.NewBackend())
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(st, localstate.NewMemoryStore(), nil, WithClock(func() time.Time { return clock }))
	u, err := svc.Boot(ctx)
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	require.NoError(t, svc.Heartbeat(ctx))
	assert.True(t, svc.Current().LastActiveAt.Equal(clock))

	require.NoError(t, svc.Close(ctx))
	assert.Equal(t, NoIdentity, svc.State())
	assert.Nil(t, svc.Current())
	assert.Zero(t, st.SubscriberCount())

	stored, err := st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stored.Online)

	err = svc.Heartbeat(ctx)
	assert.Equal(t, errorx.CodeInvalidState, errorx.GetCode(err))
}
