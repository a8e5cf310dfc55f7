package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"roomchat/internal/config"
)

func TestLoadClientDefaults(t *testing.T) {
	t.Setenv("ROOMCHAT_API_URL", "")
	t.Setenv("ROOMCHAT_WS_URL", "")
	t.Setenv("ROOMCHAT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")

	c := config.LoadClient()
	assert.Equal(t, config.DefaultAPIBaseURL, c.APIBaseURL)
	assert.Equal(t, config.DefaultWSBaseURL, c.WSBaseURL)
	assert.Empty(t, c.Token)
	assert.Zero(t, c.TelegramChatID)
}

func TestLoadClientFromEnv(t *testing.T) {
	t.Setenv("ROOMCHAT_API_URL", "https://api.example.com")
	t.Setenv("ROOMCHAT_WS_URL", "wss://api.example.com/ws")
	t.Setenv("ROOMCHAT_TOKEN", "jwt-here")
	t.Setenv("TELEGRAM_CHAT_ID", "123456789")

	c := config.LoadClient()
	assert.Equal(t, "https://api.example.com", c.APIBaseURL)
	assert.Equal(t, "wss://api.example.com/ws", c.WSBaseURL)
	assert.Equal(t, "jwt-here", c.Token)
	assert.Equal(t, int64(123456789), c.TelegramChatID)
}

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("ROOMCHAT_LISTEN_ADDR", "")
	t.Setenv("ROOMCHAT_JWT_SECRET", "")

	s := config.LoadServer()
	assert.Equal(t, config.DefaultListenAddr, s.ListenAddr)
	assert.Equal(t, config.DefaultJWTSecret, s.JWTSecret)
}

func TestBadChatIDIgnored(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")
	assert.Zero(t, config.LoadClient().TelegramChatID)
}
