package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "edusupport-chat", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())

	assert.Equal(t, "memory", cfg.Chat.Broker)
	assert.Equal(t, 64, cfg.Chat.SubscriberBuffer)
	assert.Equal(t, 3, cfg.Chat.MaxAttachments)
	assert.Equal(t, 8192, cfg.Chat.MaxBodyBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHAT_BROKER", "redis")
	t.Setenv("CHAT_SUBSCRIBER_BUFFER", "128")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Chat.Broker)
	assert.Equal(t, 128, cfg.Chat.SubscriberBuffer)
	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
	assert.Equal(t, time.Duration(0), cfg.App.RequestTimeout())
}
