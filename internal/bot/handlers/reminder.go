package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/nudge/internal/ai"
	"github.com/hray3182/nudge/internal/format"
	"github.com/hray3182/nudge/internal/repository"
	"github.com/hray3182/nudge/internal/timezone"
)

const cancelledSuffix = "\n\n❌ Reminder cancelled!"

func (h *Handlers) timezoneFor(ctx context.Context, userID int64) (string, error) {
	zone, err := h.store.GetTimezone(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load timezone")
		return "", err
	}
	return zone, nil
}

func (h *Handlers) handleText(ctx context.Context, msg *tgbotapi.Message) {
	if h.extractor == nil {
		h.sendMessage(msg.Chat.ID, "Natural language input is not configured. Use /manual to create a reminder.")
		return
	}
	h.createFromText(ctx, msg, msg.Text, "")
}

func (h *Handlers) handleVoice(ctx context.Context, msg *tgbotapi.Message) {
	if h.transcriber == nil || h.extractor == nil {
		h.sendMessage(msg.Chat.ID, "Voice input is not configured. Send the reminder as text or use /manual.")
		return
	}

	text, err := h.transcribeVoice(ctx, msg.Voice.FileID)
	if err != nil {
		h.log.Warn().Err(err).Int64("user_id", msg.From.ID).Msg("voice transcription failed")
		h.sendMessage(msg.Chat.ID, "❌ I could not recognise the voice message, please try again.")
		return
	}
	h.createFromText(ctx, msg, text, text)
}

func (h *Handlers) transcribeVoice(ctx context.Context, fileID string) (string, error) {
	url, err := h.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("get file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download voice: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download voice: status %d", resp.StatusCode)
	}

	name := path.Base(url)
	if name == "" || name == "." || name == "/" {
		name = "voice.ogg"
	}
	return h.transcriber.Transcribe(ctx, resp.Body, name)
}

// createFromText runs the extractor on text and plans the result. heard is
// echoed back for voice input.
func (h *Handlers) createFromText(ctx context.Context, msg *tgbotapi.Message, text, heard string) {
	userID := msg.From.ID
	zone, err := h.timezoneFor(ctx, userID)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "❌ Something went wrong, please try again later.")
		return
	}

	event, err := h.extractor.Extract(ctx, text, zone)
	if err != nil {
		h.log.Info().Err(err).Int64("user_id", userID).Msg("extraction failed")
		reply := "❌ I could not find an event and a date in your message. Try something like \"Dentist tomorrow at 10:00\" or use /manual."
		if !errors.Is(err, ai.ErrExtraction) {
			reply = "❌ The assistant is unavailable right now, please try again later or use /manual."
		}
		h.sendMessage(msg.Chat.ID, reply)
		return
	}

	h.planAndConfirm(ctx, msg.Chat.ID, userID, event.Description, event.EventAt, zone, "✅ Reminder created!", heard)
}

func (h *Handlers) planAndConfirm(ctx context.Context, chatID, userID int64, description string, eventAt time.Time, zone, title, heard string) bool {
	res, err := h.planner.Plan(ctx, userID, description, eventAt, "")
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to plan reminder")
		h.sendMessage(chatID, "❌ Could not save the reminder, please try again later.")
		return false
	}
	if res.Empty() {
		h.sendMessage(chatID, fmt.Sprintf("⌛ %s (%s) has already passed, there is nothing to remind you about.",
			format.Escape(description), timezone.Format(res.EventAt, zone)))
		return false
	}

	var sb strings.Builder
	sb.WriteString(title + "\n\n")
	if heard != "" {
		sb.WriteString("I heard: " + format.Escape(heard) + "\n\n")
	}
	sb.WriteString("Event: **" + format.Escape(description) + "**\n")
	sb.WriteString("Date and time: **" + timezone.Format(res.EventAt, zone) + "**")

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "cancel:"+res.ReminderKey),
		),
	)
	h.sendWithMarkup(chatID, sb.String(), keyboard)

	if h.scheduler != nil {
		h.scheduler.Notify()
	}
	return true
}

// handleCancelReminder handles the Cancel button under a confirmation.
func (h *Handlers) handleCancelReminder(ctx context.Context, callback *tgbotapi.CallbackQuery, args []string) {
	if len(args) != 1 || args[0] == "" {
		h.answerCallback(callback.ID, "")
		return
	}

	err := h.store.DeleteReminder(ctx, callback.From.ID, args[0])
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.answerCallback(callback.ID, "This reminder no longer exists")
		return
	case err != nil:
		h.log.Error().Err(err).Str("reminder", args[0]).Msg("failed to cancel reminder")
		h.answerCallback(callback.ID, "Could not cancel the reminder, try again later")
		return
	}

	h.editMessage(callback.Message.Chat.ID, callback.Message.MessageID, format.Escape(callback.Message.Text)+cancelledSuffix, nil)
	h.answerCallback(callback.ID, "Reminder cancelled")
}
