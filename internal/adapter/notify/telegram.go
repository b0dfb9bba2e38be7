// Package notify delivers run status messages.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/folderbak/internal/domain"
)

const sendTimeout = 30 * time.Second

type Logger interface {
	Debugf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

type TelegramConfig struct {
	Token         string
	ChatID        string
	Node          string
	SilentSuccess bool
}

// TelegramNotifier sends messages through the Bot API. Without a token or
// chat id every Notify is a no-op.
type TelegramNotifier struct {
	cfg    TelegramConfig
	logger Logger

	endpoint string
	client   tgbotapi.HTTPClient
	bot      *tgbotapi.BotAPI
}

func NewTelegram(cfg TelegramConfig, logger Logger) *TelegramNotifier {
	return &TelegramNotifier{
		cfg:      cfg,
		logger:   logger,
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: sendTimeout},
	}
}

func (t *TelegramNotifier) Configured() bool {
	return t.cfg.Token != "" && t.cfg.ChatID != ""
}

func (t *TelegramNotifier) Notify(ctx context.Context, msg domain.Message) error {
	if !t.Configured() {
		t.logger.Warnf("Telegram bot token or chat id not provided, skipping notification: %s", msg.Text)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.ErrNotification, "send telegram message", "", err)
	}

	if t.bot == nil {
		bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.Token, t.endpoint, t.client)
		if err != nil {
			return domain.Wrap(domain.ErrNotification, "create telegram bot", "", err)
		}
		t.bot = bot
	}

	out := t.message(t.Format(msg))
	out.DisableNotification = !msg.IsError && t.cfg.SilentSuccess

	if _, err := t.bot.Send(out); err != nil {
		return domain.Wrap(domain.ErrNotification, "send telegram message", "", err)
	}

	t.logger.Debugf("Telegram notification sent (error=%t)", msg.IsError)
	return nil
}

// message addresses numeric chat ids directly and anything else as a
// public @channel.
func (t *TelegramNotifier) message(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(t.cfg.ChatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	channel := t.cfg.ChatID
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return tgbotapi.NewMessageToChannel(channel, text)
}

// Format prefixes the message with the node it came from.
func (t *TelegramNotifier) Format(msg domain.Message) string {
	node := t.cfg.Node
	if node == "" {
		node = "unknown"
	}
	if msg.IsError {
		return fmt.Sprintf("Error while creating backup on node %s. Logs: %s", node, msg.Text)
	}
	return fmt.Sprintf("Backup on node %s: %s", node, msg.Text)
}
