package bot

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeChat struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeChat) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestSenderParsesMarkdown(t *testing.T) {
	chat := &fakeChat{}
	s := NewSender(chat)

	if err := s.Send(context.Background(), 42, "⏰ **Dentist** soon"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(chat.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(chat.sent))
	}
	got := chat.sent[0]
	if got.ChatID != 42 {
		t.Errorf("ChatID = %d, want 42", got.ChatID)
	}
	if got.Text != "⏰ Dentist soon" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Entities) != 1 || got.Entities[0].Type != "bold" {
		t.Errorf("Entities = %+v, want one bold entity", got.Entities)
	}
}

func TestSenderWrapsError(t *testing.T) {
	boom := errors.New("boom")
	s := NewSender(&fakeChat{err: boom})

	err := s.Send(context.Background(), 1, "hi")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping %v", err, boom)
	}
}

func TestSenderCancelledContext(t *testing.T) {
	chat := &fakeChat{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewSender(chat).Send(ctx, 1, "hi"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(chat.sent) != 0 {
		t.Fatalf("sent %d messages on a cancelled context", len(chat.sent))
	}
}
