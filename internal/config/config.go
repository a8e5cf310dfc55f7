// Package config collects the environment knobs for the client and the
// dev server. Values come from the process environment, with an
// optional .env file loaded by the binaries.
package config

import (
	"os"
	"strconv"
	"time"
)

const (
	// Client defaults.
	DefaultAPIBaseURL = "http://localhost:8000"
	DefaultWSBaseURL  = "ws://localhost:8000/ws"

	// Reconnect cadence. The conversation socket retries faster than
	// the notification one.
	ChatRetryDelay         = 2 * time.Second
	NotificationRetryDelay = 5 * time.Second

	// Dev server defaults.
	DefaultListenAddr  = ":8000"
	DefaultPostgresDSN = "host=localhost user=user password=password dbname=roomchat port=5432 sslmode=disable"
	DefaultRedisAddr   = "localhost:6379"
	DefaultJWTSecret   = "dev-secret-change-me"
)

// Client holds everything the chat client binary needs.
type Client struct {
	APIBaseURL string
	WSBaseURL  string
	Token      string

	// Telegram alert forwarding; disabled when the token is empty.
	TelegramBotToken string
	TelegramChatID   int64
}

// Server holds everything the dev server binary needs.
type Server struct {
	ListenAddr  string
	PostgresDSN string
	RedisAddr   string
	RedisPass   string
	JWTSecret   string
}

// LoadClient reads the client configuration from the environment.
func LoadClient() Client {
	return Client{
		APIBaseURL:       envOr("ROOMCHAT_API_URL", DefaultAPIBaseURL),
		WSBaseURL:        envOr("ROOMCHAT_WS_URL", DefaultWSBaseURL),
		Token:            os.Getenv("ROOMCHAT_TOKEN"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   envInt64("TELEGRAM_CHAT_ID"),
	}
}

// LoadServer reads the dev server configuration from the environment.
func LoadServer() Server {
	return Server{
		ListenAddr:  envOr("ROOMCHAT_LISTEN_ADDR", DefaultListenAddr),
		PostgresDSN: envOr("ROOMCHAT_POSTGRES_DSN", DefaultPostgresDSN),
		RedisAddr:   envOr("ROOMCHAT_REDIS_ADDR", DefaultRedisAddr),
		RedisPass:   os.Getenv("ROOMCHAT_REDIS_PASSWORD"),
		JWTSecret:   envOr("ROOMCHAT_JWT_SECRET", DefaultJWTSecret),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string) int64 {
	v, _ := strconv.ParseInt(os.Getenv(key), 10, 64)
	return v
}
