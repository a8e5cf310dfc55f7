package notify

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"roomchat/internal/models"
)

// botSender is the slice of *tgbotapi.BotAPI the sink needs.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink forwards incoming alerts to a Telegram chat, for running
// the client headless or away from the terminal.
type TelegramSink struct {
	bot    botSender
	chatID int64
}

// NewTelegramSink authorizes the bot and binds it to one chat.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram sink: %w", err)
	}
	bot.Debug = false
	log.Printf("✅ Notification bot authorized on account %s", bot.Self.UserName)
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

// Push sends one alert. Failures are logged; alert delivery to Telegram
// is best effort and never blocks the realtime channel.
func (s *TelegramSink) Push(n models.Notification) {
	text := fmt.Sprintf("🔔 *%s*\n%s", n.Title, n.Message)
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.bot.Send(msg); err != nil {
		log.Printf("ERROR: Failed to send Telegram notification: %v", err)
	}
}
