package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "memory", c.Backend)
	assert.Equal(t, 7*24*time.Hour, c.FriendshipDuration())
	assert.Equal(t, 24*time.Hour, c.ChatInactivity())
	assert.Equal(t, 48*time.Hour, c.GroupInactivity())
	assert.Equal(t, time.Second, c.ViewOnceGrace.Duration)
	assert.Equal(t, 10*time.Second, c.TimedDeleteDefault.Duration)
	assert.Equal(t, 2*time.Second, c.TypingDebounce.Duration)
	assert.Zero(t, c.LapseSweepInterval.Duration)
	assert.False(t, c.AutoAcceptReciprocal)
	assert.Equal(t, 8000, c.MainConfig.Port)
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[storeConfig]
backend = "redis"

[lifecycleConfig]
friendshipDurationDays = 3
viewOnceGrace = "250ms"
lapseSweepInterval = "1h"
autoAcceptReciprocal = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", c.Backend)
	assert.Equal(t, 3*24*time.Hour, c.FriendshipDuration())
	assert.Equal(t, 250*time.Millisecond, c.ViewOnceGrace.Duration)
	assert.Equal(t, time.Hour, c.LapseSweepInterval.Duration)
	assert.True(t, c.AutoAcceptReciprocal)
	// 未配置的字段回落到默认值
	assert.Equal(t, 24, c.ChatInactivityHours)
	assert.Equal(t, 10*time.Second, c.TimedDeleteDefault.Duration)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[lifecycleConfig]\nviewOnceGrace = \"soon\"\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
