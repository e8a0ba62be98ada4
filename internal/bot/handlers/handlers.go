package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/hray3182/nudge/internal/ai"
	"github.com/hray3182/nudge/internal/format"
	"github.com/hray3182/nudge/internal/planner"
	"github.com/hray3182/nudge/internal/repository"
)

// API is the part of *tgbotapi.BotAPI the handlers use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, text, zone string) (*ai.Event, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Notifier asks the poll loop for an immediate check.
type Notifier interface {
	Notify()
}

// Deps wires the handlers. Extractor, Transcriber and Scheduler are optional.
type Deps struct {
	API         API
	Store       repository.Store
	Planner     *planner.Planner
	Extractor   Extractor
	Transcriber Transcriber
	Scheduler   Notifier
	HTTPClient  *http.Client
	Log         zerolog.Logger
}

type Handlers struct {
	api         API
	store       repository.Store
	planner     *planner.Planner
	extractor   Extractor
	transcriber Transcriber
	scheduler   Notifier
	http        *http.Client
	log         zerolog.Logger
	sessions    *sessions
	now         func() time.Time
}

func New(d Deps) *Handlers {
	httpClient := d.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Handlers{
		api:         d.API,
		store:       d.Store,
		planner:     d.Planner,
		extractor:   d.Extractor,
		transcriber: d.Transcriber,
		scheduler:   d.Scheduler,
		http:        httpClient,
		log:         d.Log,
		sessions:    newSessions(time.Now),
		now:         time.Now,
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "list":
		h.handleList(ctx, msg)
	case "settings":
		h.handleSettings(ctx, msg)
	case "manual":
		h.handleManual(ctx, msg)
	case "cancel":
		h.handleCancel(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

// HandleMessage routes plain text and voice. Text answers a pending prompt
// first; otherwise it goes to the extractor.
func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Voice != nil {
		h.handleVoice(ctx, msg)
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	switch h.sessions.get(msg.From.ID).State {
	case stateManualDescription:
		h.handleManualDescription(ctx, msg)
	case stateManualDatetime:
		h.handleManualDatetime(ctx, msg)
	case stateTimezone:
		h.handleTimezoneInput(ctx, msg)
	default:
		h.handleText(ctx, msg)
	}
}

// HandleCallbackQuery dispatches inline button presses. Data is
// "<area>:<action>[:args]".
func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || callback.From == nil {
		h.answerCallback(callback.ID, "")
		return
	}
	parts := strings.Split(callback.Data, ":")

	switch parts[0] {
	case "list":
		h.handleListCallback(ctx, callback, parts[1:])
	case "cancel":
		h.handleCancelReminder(ctx, callback, parts[1:])
	case "tz":
		h.handleTimezoneCallback(ctx, callback, parts[1:])
	case "manual":
		h.handleManualCancel(ctx, callback)
	default:
		h.answerCallback(callback.ID, "")
	}
}

func (h *Handlers) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	name := ""
	if msg.From != nil {
		name = " " + format.Escape(msg.From.FirstName)
	}
	text := "👋 Hi" + name + `! I turn your messages into reminders.

Send me a voice message or describe the event in text, for example:
• "Doctor appointment on March 25 at 14:30"
• "Call mom in 2 hours"
• "Meeting tomorrow at 15:00"

I will remind you 3 days, 2 days, 1 day and 2 hours before, and when it starts.

See /help for all commands.`
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := `📖 **Commands**

/list - show your reminders
/manual - create a reminder step by step
/settings - set your timezone
/cancel - abort the current step

💡 You can also just write or say what to remind you about.`
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) answerCallback(callbackID, text string) {
	if _, err := h.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		h.log.Warn().Err(err).Msg("failed to answer callback")
	}
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	h.sendWithMarkup(chatID, text, nil)
}

func (h *Handlers) sendWithMarkup(chatID int64, text string, markup interface{}) {
	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(chatID, parsed.Text)
	msg.Entities = parsed.Entities
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := h.api.Send(msg); err != nil {
		h.log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}

func (h *Handlers) editMessage(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parsed := format.ParseMarkdown(text)
	edit := tgbotapi.NewEditMessageText(chatID, messageID, parsed.Text)
	edit.Entities = parsed.Entities
	edit.ReplyMarkup = keyboard
	if _, err := h.api.Send(edit); err != nil {
		h.log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to edit message")
	}
}
