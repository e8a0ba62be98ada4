package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/nudge/internal/format"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/repository"
	"github.com/hray3182/nudge/internal/timezone"
)

const (
	noRemindersText     = "You have no reminders yet."
	noMoreRemindersText = "You have no more reminders."
)

func (h *Handlers) handleList(ctx context.Context, msg *tgbotapi.Message) {
	text, keyboard, err := h.renderList(ctx, msg.From.ID, false)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ Could not load your reminders, please try again later.")
		return
	}
	if keyboard == nil {
		h.sendMessage(msg.Chat.ID, text)
		return
	}
	h.sendWithMarkup(msg.Chat.ID, text, *keyboard)
}

// renderList lists the user's reminders, which also renumbers them. In edit
// mode every reminder gets a delete button stamped with this render's
// generation.
func (h *Handlers) renderList(ctx context.Context, userID int64, edit bool) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	listing, err := h.store.ListReminders(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list reminders")
		return "", nil, err
	}
	if listing.Empty() {
		return noRemindersText, nil, nil
	}
	zone, err := h.timezoneFor(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	text := formatListing(listing, zone)
	if !edit {
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🗑 Delete by ID", "list:edit"),
			),
		)
		return text, &keyboard, nil
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(listing.Entries)+1)
	for _, e := range listing.Entries {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("🗑 ID: %d", e.DisplayID),
				fmt.Sprintf("list:del:%d:%d", listing.Generation, e.DisplayID),
			),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Done", "list:done"),
	))
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return text, &keyboard, nil
}

func formatListing(listing *models.Listing, zone string) string {
	var sb strings.Builder
	sb.WriteString("📋 **Your reminders**\n\n")
	for _, e := range listing.Entries {
		fmt.Fprintf(&sb, "🎯 Event (ID: %d):\n", e.DisplayID)
		fmt.Fprintf(&sb, "└ %s\n", format.Escape(e.Reminder.Description))
		fmt.Fprintf(&sb, "└ %s\n", timezone.Format(e.Reminder.EventAt, zone))
		if len(e.Notifications) > 0 {
			sb.WriteString("├ Upcoming alerts:\n")
			for _, n := range e.Notifications {
				fmt.Fprintf(&sb, "  └ %s (%s)\n", format.Escape(n.LeadLabel), timezone.Format(n.FireAt, zone))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (h *Handlers) handleListCallback(ctx context.Context, callback *tgbotapi.CallbackQuery, args []string) {
	if len(args) == 0 {
		h.answerCallback(callback.ID, "")
		return
	}

	switch args[0] {
	case "edit":
		h.refreshList(ctx, callback, true, "")
	case "done":
		h.refreshList(ctx, callback, false, "Changes saved")
	case "del":
		h.deleteFromList(ctx, callback, args[1:])
	default:
		h.answerCallback(callback.ID, "")
	}
}

func (h *Handlers) refreshList(ctx context.Context, callback *tgbotapi.CallbackQuery, edit bool, answer string) {
	text, keyboard, err := h.renderList(ctx, callback.From.ID, edit)
	if err != nil {
		h.answerCallback(callback.ID, "Could not load your reminders")
		return
	}
	h.editMessage(callback.Message.Chat.ID, callback.Message.MessageID, text, keyboard)
	h.answerCallback(callback.ID, answer)
}

// deleteFromList handles "list:del:<generation>:<display id>".
func (h *Handlers) deleteFromList(ctx context.Context, callback *tgbotapi.CallbackQuery, args []string) {
	if len(args) != 2 {
		h.answerCallback(callback.ID, "")
		return
	}
	generation, err1 := strconv.ParseInt(args[0], 10, 64)
	displayID, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		h.answerCallback(callback.ID, "")
		return
	}
	userID := callback.From.ID

	key, err := h.store.ResolveDisplayID(ctx, userID, generation, displayID)
	if errors.Is(err, repository.ErrStaleListing) {
		h.refreshList(ctx, callback, true, "The list was out of date, here is the current one")
		return
	}
	if err == nil {
		err = h.store.DeleteReminder(ctx, userID, key)
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.answerCallback(callback.ID, "Reminder not found")
		return
	case err != nil:
		h.log.Error().Err(err).Int64("user_id", userID).Int("display_id", displayID).Msg("failed to delete reminder")
		h.answerCallback(callback.ID, "Could not delete the reminder, try again later")
		return
	}

	text, keyboard, err := h.renderList(ctx, userID, true)
	if err != nil {
		h.answerCallback(callback.ID, "Reminder deleted")
		return
	}
	if keyboard == nil {
		text = noMoreRemindersText
	}
	h.editMessage(callback.Message.Chat.ID, callback.Message.MessageID, text, keyboard)
	h.answerCallback(callback.ID, "Reminder deleted")
}
