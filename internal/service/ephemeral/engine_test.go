package ephemeral

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemeral_chat/internal/config"
	"ephemeral_chat/internal/dao/memory"
	"ephemeral_chat/internal/model"
	"ephemeral_chat/internal/store"
	"ephemeral_chat/pkg/errorx"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *fakeClock) {
	t.Helper()
	st := store.New(memory.NewBackend())
	cfg := config.Default().LifecycleConfig
	cfg.ViewOnceGrace.Duration = 20 * time.Millisecond
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	var seq int
	var mu sync.Mutex
	e := NewEngine(st, cfg,
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return "m" + strconv.Itoa(seq)
		}),
	)
	t.Cleanup(e.Close)
	for _, id := range []string{"1", "2"} {
		require.NoError(t, st.PutUser(context.Background(), model.NewUser(id, "User"+id, "", clock.Now())))
	}
	return e, st, clock
}

func TestImageForcesViewOnce(t *testing.T) {
	e, _, _ := newTestEngine(t)
	msg, err := e.Send(context.Background(), SendInput{
		SenderID: "1", RecipientID: "2", ImageRef: "img://cat", Policy: model.PolicyPersistent,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PolicyViewOnce, msg.EphemeralPolicy.Kind)
	assert.Empty(t, msg.Text)
}

func TestTimedDeleteDefaultsToTenSeconds(t *testing.T) {
	e, _, _ := newTestEngine(t)
	msg, err := e.Send(context.Background(), SendInput{
		SenderID: "1", RecipientID: "2", Text: "hi", Policy: model.PolicyTimedDelete,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TimedDelete(10*time.Second), msg.EphemeralPolicy)
}

func TestSendValidation(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []SendInput{
		{SenderID: "1", RecipientID: "2"},
		{SenderID: "1", RecipientID: "2", Text: "   \n\t"},
		{SenderID: "1", RecipientID: "2", Text: "hi", ImageRef: "img://x"},
		{SenderID: "1", RecipientID: "1", Text: "hi"},
		{SenderID: "", RecipientID: "2", Text: "hi"},
		{SenderID: "1", RecipientID: "2", Text: "hi", Policy: "forever"},
		{SenderID: "1", RecipientID: "z/messages/evil", Text: "hi"},
		{SenderID: "1", RecipientID: "2_3", Text: "hi"},
		{SenderID: "1/x", RecipientID: "2", Text: "hi"},
	}
	for i, in := range cases {
		_, err := e.Send(ctx, in)
		require.Error(t, err, "case %d", i)
		assert.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err), "case %d", i)
		var ve validator.ValidationErrors
		assert.True(t, errors.As(err, &ve), "case %d", i)
	}

	_, err := st.GetChat(ctx, model.ChatID("1", "2"))
	assert.True(t, errorx.IsNotFound(err))
}

func TestSendToMissingRecipient(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Send(ctx, SendInput{SenderID: "1", RecipientID: "99999999", Text: "anyone?"})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeUserNotExist, errorx.GetCode(err))

	_, err = st.GetChat(ctx, model.ChatID("1", "99999999"))
	assert.True(t, errorx.IsNotFound(err))
	msgs, err := st.ListMessages(ctx, model.ChatID("1", "99999999"))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCraftedRecipientCannotReachAnotherChat(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Send(ctx, SendInput{SenderID: "1", RecipientID: "2", Text: "legit"})
	require.NoError(t, err)

	_, err = e.Send(ctx, SendInput{SenderID: "1", RecipientID: "2/messages/evil", Text: "x"})
	assert.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))

	msgs, err := st.ListMessages(ctx, "1_2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "legit", msgs[0].Text)
}

func TestSendCreatesChatLazily(t *testing.T) {
	e, st, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Send(ctx, SendInput{SenderID: "2", RecipientID: "1", Text: "first"})
	require.NoError(t, err)
	chat, err := st.GetChat(ctx, "1_2")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, chat.Participants)
	assert.True(t, chat.LastActivityAt.Equal(clock.Now()))

	clock.Advance(time.Hour)
	_, err = e.Send(ctx, SendInput{SenderID: "1", RecipientID: "2", Text: "second"})
	require.NoError(t, err)
	chat, err = st.GetChat(ctx, "1_2")
	require.NoError(t, err)
	assert.True(t, chat.LastActivityAt.Equal(clock.Now()))

	msgs, err := st.ListMessages(ctx, "1_2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
}

func TestViewOnceRemovedAfterGraceAndScheduledOnce(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	msg, err := e.Send(ctx, SendInput{SenderID: "1", RecipientID: "2", Text: "secret", Policy: model.PolicyViewOnce})
	require.NoError(t, err)

	// 发送者查看不触发
	require.NoError(t, e.Observe(ctx, msg, "1", "view-a"))
	assert.Zero(t, e.Pending())

	require.NoError(t, e.Observe(ctx, msg, "2", "view-b"))
	require.NoError(t, e.Observe(ctx, msg, "2", "view-b"))
	require.NoError(t, e.Observe(ctx, msg, "2", "view-c"))
	assert.Equal(t, 1, e.Pending())

	viewed, err := st.GetMessage(ctx, msg.ChatID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, viewed.ViewedBy)

	require.Eventually(t, func() bool {
		_, err := st.GetMessage(ctx, msg.ChatID, msg.ID)
		return errorx.IsNotFound(err)
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, e.Pending())

	// 删除后再次查看不会重建
	require.NoError(t, e.Observe(ctx, msg, "2", "view-b"))
	_, err = st.GetMessage(ctx, msg.ChatID, msg.ID)
	assert.True(t, errorx.IsNotFound(err))
	assert.Zero(t, e.Pending())
}

func TestPersistentAndOutsidersIgnored(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	msg, err := e.Send(ctx, SendInput{SenderID: "1", RecipientID: "2", Text: "keep"})
	require.NoError(t, err)
	require.NoError(t, e.Observe(ctx, msg, "2", "v"))
	assert.Zero(t, e.Pending())

	once, err := e.Send(ctx, SendInput{SenderID: "1", RecipientID: "2", Text: "x", Policy: model.PolicyViewOnce})
	require.NoError(t, err)
	require.NoError(t, e.Observe(ctx, once, "3", "v"))
	assert.Zero(t, e.Pending())
}

func TestCancelOwnerKeepsMessage(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	msg, err := e.Send(ctx, SendInput{SenderID: "1", RecipientID: "2", Text: "t", Policy: model.PolicyTimedDelete, Duration: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, e.Observe(ctx, msg, "2", "view"))
	assert.Equal(t, 1, e.CancelOwner("view"))

	time.Sleep(100 * time.Millisecond)
	got, err := st.GetMessage(ctx, msg.ChatID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, got.ViewedBy)

	// 重新打开视图会重新调度
	require.NoError(t, e.Observe(ctx, got, "2", "view2"))
	assert.Equal(t, 1, e.Pending())
}

func TestInactivityWipeKeepsChat(t *testing.T) {
	e, st, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Send(ctx, SendInput{SenderID: "1", RecipientID: "2", Text: "a"})
	require.NoError(t, err)
	_, err = e.Send(ctx, SendInput{SenderID: "2", RecipientID: "1", Text: "b"})
	require.NoError(t, err)

	clock.Advance(23 * time.Hour)
	wiped, err := e.OpenChat(ctx, "1_2")
	require.NoError(t, err)
	assert.False(t, wiped)

	clock.Advance(2 * time.Hour)
	wiped, err = e.OpenChat(ctx, "1_2")
	require.NoError(t, err)
	assert.True(t, wiped)

	msgs, err := st.ListMessages(ctx, "1_2")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	chat, err := st.GetChat(ctx, "1_2")
	require.NoError(t, err)
	assert.True(t, chat.LastActivityAt.Equal(clock.Now()))

	wiped, err = e.OpenChat(ctx, "nobody_here")
	require.NoError(t, err)
	assert.False(t, wiped)
}

func TestGroupChatUsesLongerThreshold(t *testing.T) {
	e, st, clock := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, st.PutChat(ctx, &model.Chat{ID: "g", Participants: []string{"1", "2", "3"}, LastActivityAt: clock.Now()}))

	clock.Advance(25 * time.Hour)
	wiped, err := e.OpenChat(ctx, "g")
	require.NoError(t, err)
	assert.False(t, wiped)

	clock.Advance(24 * time.Hour)
	wiped, err = e.OpenChat(ctx, "g")
	require.NoError(t, err)
	assert.True(t, wiped)
}

func TestCloseStopsTimers(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	msg, err := e.Send(ctx, SendInput{SenderID: "1", RecipientID: "2", Text: "x", Policy: model.PolicyViewOnce})
	require.NoError(t, err)
	require.NoError(t, e.Observe(ctx, msg, "2", "v"))
	e.Close()
	assert.Zero(t, e.Pending())

	time.Sleep(60 * time.Millisecond)
	_, err = st.GetMessage(ctx, msg.ChatID, msg.ID)
	assert.NoError(t, err)

	require.NoError(t, e.Observe(ctx, msg, "2", "v"))
	assert.Zero(t, e.Pending())
}
