package chat

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/types"
)

// Telegram is a Transport backed by the Telegram Bot API long-poll
type Telegram struct {
	token    string
	endpoint string
	timeout  int
	log      *zap.SugaredLogger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// pollTimeout is the long-poll timeout in seconds. The library's polling
// goroutine only notices StopReceivingUpdates between requests, so this bounds
// how long it outlives a cancelled ctx.
const pollTimeout = 10

// NewTelegram creates a transport. It does not connect until Updates.
func NewTelegram(token string, log *zap.Logger) *Telegram {
	t := &Telegram{
		token:    token,
		endpoint: tgbotapi.APIEndpoint,
		timeout:  pollTimeout,
		log:      log.Named("telegram").Sugar(),
	}
	_ = tgbotapi.SetLogger(botLogger{t.log})
	return t
}

// Updates connects to the Bot API and streams text messages
func (t *Telegram) Updates(ctx context.Context) (<-chan types.ChatMessage, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.token, t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.timeout
	updates := bot.GetUpdatesChan(u)

	out := make(chan types.ChatMessage)
	go func() {
		defer close(out)
		defer bot.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil {
					continue
				}
				select {
				case out <- toChatMessage(update.Message):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Send replies in chatID
func (t *Telegram) Send(_ context.Context, chatID int64, replyTo int, text string) error {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return fmt.Errorf("telegram not connected")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// BotName returns the connected bot's username
func (t *Telegram) BotName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot == nil {
		return ""
	}
	return t.bot.Self.UserName
}

func toChatMessage(m *tgbotapi.Message) types.ChatMessage {
	msg := types.ChatMessage{
		MessageID: m.MessageID,
		Text:      m.Text,
	}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
		msg.Private = m.Chat.IsPrivate()
	}
	if m.From != nil {
		msg.From = m.From.UserName
	}
	return msg
}

// botLogger routes the library's log output through zap
type botLogger struct {
	log *zap.SugaredLogger
}

func (l botLogger) Println(v ...interface{}) {
	l.log.Debug(v...)
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf(format, v...)
}
