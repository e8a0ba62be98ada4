package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/nudge/internal/timezone"
)

func manualCancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "manual:cancel"),
		),
	)
}

func (h *Handlers) handleManual(ctx context.Context, msg *tgbotapi.Message) {
	h.sessions.set(msg.From.ID, stateManualDescription, "")
	text := `📝 **New reminder**

Step 1: describe the event
For example: "Doctor appointment" or "Call mom"`
	h.sendWithMarkup(msg.Chat.ID, text, manualCancelKeyboard())
}

func (h *Handlers) handleManualDescription(ctx context.Context, msg *tgbotapi.Message) {
	description := strings.TrimSpace(msg.Text)
	h.sessions.set(msg.From.ID, stateManualDatetime, description)

	text := `📅 Step 2: send the date and time as DD.MM.YYYY HH:MM
For example: 25.11.2031 15:30`
	h.sendWithMarkup(msg.Chat.ID, text, manualCancelKeyboard())
}

func (h *Handlers) handleManualDatetime(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	state := h.sessions.get(userID)

	zone, err := h.timezoneFor(ctx, userID)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ Something went wrong, please try again or /cancel.")
		return
	}

	eventAt, err := timezone.ParseLocal(msg.Text, zone)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ Invalid date and time. Use DD.MM.YYYY HH:MM, for example 25.11.2031 15:30")
		return
	}
	if !eventAt.After(h.now()) {
		h.sendMessage(msg.Chat.ID, "❌ That time has already passed. Please send a future date and time.")
		return
	}

	if h.planAndConfirm(ctx, msg.Chat.ID, userID, state.Description, eventAt, zone, "✅ Reminder created manually!", "") {
		h.sessions.clear(userID)
	}
}

func (h *Handlers) handleManualCancel(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	switch h.sessions.clear(callback.From.ID) {
	case stateManualDescription, stateManualDatetime:
		h.editMessage(callback.Message.Chat.ID, callback.Message.MessageID,
			"❌ Reminder creation cancelled.\nStart again with /manual", nil)
		h.answerCallback(callback.ID, "")
	default:
		h.answerCallback(callback.ID, "Nothing to cancel")
	}
}

func (h *Handlers) handleCancel(ctx context.Context, msg *tgbotapi.Message) {
	if h.sessions.clear(msg.From.ID) == stateIdle {
		h.sendMessage(msg.Chat.ID, "Nothing to cancel.")
		return
	}
	h.sendMessage(msg.Chat.ID, "❌ Cancelled.")
}
