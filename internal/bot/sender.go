package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/nudge/internal/format"
)

// Chat is the part of *tgbotapi.BotAPI needed to deliver notifications.
type Chat interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender delivers rendered notifications as private chat messages.
type Sender struct {
	chat Chat
}

func NewSender(chat Chat) *Sender {
	return &Sender{chat: chat}
}

// Send uses userID as the chat id; notifications only go to private chats.
func (s *Sender) Send(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(userID, parsed.Text)
	msg.Entities = parsed.Entities
	if _, err := s.chat.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", userID, err)
	}
	return nil
}
