package handlers

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/nudge/internal/timezone"
)

// Offsets offered as buttons; anything else in range can be typed.
var timezoneButtons = []int{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

// handleSettings shows the settings menu
func (h *Handlers) handleSettings(ctx context.Context, msg *tgbotapi.Message) {
	zone, err := h.timezoneFor(ctx, msg.From.ID)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ Could not load your settings, please try again later.")
		return
	}
	h.sendWithMarkup(msg.Chat.ID, settingsText(zone), settingsKeyboard())
}

func settingsText(zone string) string {
	return fmt.Sprintf("⚙️ **Settings**\n\n🌍 Timezone: %s", timezone.Display(zone))
}

func settingsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Change timezone", "tz:change"),
		),
	)
}

func timezoneKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(timezoneButtons); i += 2 {
		var row []tgbotapi.InlineKeyboardButton
		for _, hours := range timezoneButtons[i:min(i+2, len(timezoneButtons))] {
			label := fmt.Sprintf("GMT%+d", hours)
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "tz:set:"+label))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Done", "tz:done"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handlers) handleTimezoneCallback(ctx context.Context, callback *tgbotapi.CallbackQuery, args []string) {
	if len(args) == 0 {
		h.answerCallback(callback.ID, "")
		return
	}
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	switch args[0] {
	case "change":
		h.sessions.set(userID, stateTimezone, "")
		keyboard := timezoneKeyboard()
		h.editMessage(chatID, messageID,
			"🌍 Send your timezone as GMT±X (from GMT-12 to GMT+14)\n\nPick a common one or type your own:", &keyboard)
		h.answerCallback(callback.ID, "")

	case "set":
		if len(args) != 2 {
			h.answerCallback(callback.ID, "")
			return
		}
		zone, err := h.saveTimezone(ctx, userID, args[1])
		if err != nil {
			h.answerCallback(callback.ID, "Could not set the timezone")
			return
		}
		h.sessions.clear(userID)
		keyboard := settingsKeyboard()
		h.editMessage(chatID, messageID, settingsText(zone), &keyboard)
		h.answerCallback(callback.ID, "Timezone set")

	case "done":
		h.sessions.clear(userID)
		zone, err := h.timezoneFor(ctx, userID)
		if err != nil {
			h.answerCallback(callback.ID, "Could not load your settings")
			return
		}
		keyboard := settingsKeyboard()
		h.editMessage(chatID, messageID, settingsText(zone), &keyboard)
		h.answerCallback(callback.ID, "Settings saved")

	default:
		h.answerCallback(callback.ID, "")
	}
}

// handleTimezoneInput takes a typed GMT±X after "Change timezone".
func (h *Handlers) handleTimezoneInput(ctx context.Context, msg *tgbotapi.Message) {
	zone, err := h.saveTimezone(ctx, msg.From.ID, msg.Text)
	if errors.Is(err, timezone.ErrInvalidOffset) {
		h.sendMessage(msg.Chat.ID, "❌ Invalid timezone. Use GMT±X where X is between -12 and +14, for example GMT+3, or pick one of the buttons.")
		return
	}
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ Could not save the timezone, please try again later.")
		return
	}
	h.sessions.clear(msg.From.ID)
	h.sendWithMarkup(msg.Chat.ID, settingsText(zone), settingsKeyboard())
}

func (h *Handlers) saveTimezone(ctx context.Context, userID int64, offset string) (string, error) {
	zone, err := timezone.FromOffset(offset)
	if err != nil {
		return "", err
	}
	if err := h.store.SetTimezone(ctx, userID, zone); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to save timezone")
		return "", err
	}
	h.log.Info().Int64("user_id", userID).Str("timezone", zone).Msg("timezone updated")
	return zone, nil
}
