package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hray3182/nudge/internal/timezone"
)

// ErrExtraction means the model's answer held no usable event.
var ErrExtraction = errors.New("could not recognise an event in the message")

// Layout the model is asked to answer in, as wall time in the user's zone.
const eventLayout = "2006-01-02 15:04"

// Event is what the extractor pulls out of a message.
type Event struct {
	Description string
	EventAt     time.Time // UTC
}

const systemPrompt = `You extract a single event from a user's message for a reminder bot.
Always answer with JSON holding "description" and "datetime".
"datetime" uses the format YYYY-MM-DD HH:MM in the user's timezone.
Keep the description as short as possible (2-4 words) and keep only the essence of the event.
Always use the provided current time as the base for every calculation.`

const userPromptTemplate = `Current time: %s
Current year: %d
User timezone: %s
Text: %s

Description rules:
1. Keep it to 2-4 words built from nouns and verbs.
2. Drop every detail that is not the core of the event.
Examples:
- "Need to buy bread and milk at the store" -> "Buy groceries"
- "Meeting with John about the project" -> "Project meeting"

Time rules:
1. "in X minutes/hours/days" adds X minutes/hours/days to the current time.
2. A date without a year uses the current year, or the next year if that date has already passed.
3. "tomorrow" is the next day, "the day after tomorrow" the one after.
4. A time without a date uses the nearest possible date.
5. Without an exact time use 09:00 for "morning", 13:00 for "afternoon", 19:00 for "evening" and 23:00 for "night".`

var eventSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"description": {
			"type": "string",
			"description": "Short description of the event (2-4 words)"
		},
		"datetime": {
			"type": "string",
			"description": "Event time as YYYY-MM-DD HH:MM in the user's timezone"
		}
	},
	"required": ["description", "datetime"],
	"additionalProperties": false
}`)

func buildUserPrompt(text, zone string, now time.Time) string {
	local := now.In(timezone.Load(zone))
	return fmt.Sprintf(userPromptTemplate, local.Format(eventLayout), local.Year(), zone, text)
}

// Extract asks the model for the event described by text. The returned time
// is in UTC; a date that already passed this year is moved to next year.
func (c *Client) Extract(ctx context.Context, text, zone string) (*Event, error) {
	now := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(text, zone, now),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "event",
				Schema: eventSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from AI", ErrExtraction)
	}

	return parseEvent(resp.Choices[0].Message.Content, zone, now)
}

type rawEvent struct {
	Description string `json:"description"`
	Datetime    string `json:"datetime"`
}

// parseEvent decodes the model's answer. Models that ignore the schema tend
// to wrap the JSON in prose or code fences, so only the outermost object is read.
func parseEvent(content, zone string, now time.Time) (*Event, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON in response", ErrExtraction)
	}

	var raw rawEvent
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	raw.Description = strings.TrimSpace(raw.Description)
	if raw.Description == "" || raw.Datetime == "" {
		return nil, fmt.Errorf("%w: missing description or datetime", ErrExtraction)
	}

	eventAt, err := resolveEventTime(raw.Datetime, zone, now)
	if err != nil {
		return nil, err
	}
	return &Event{Description: raw.Description, EventAt: eventAt}, nil
}

func resolveEventTime(value, zone string, now time.Time) (time.Time, error) {
	loc := timezone.Load(zone)
	local, err := time.ParseInLocation(eventLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad datetime %q", ErrExtraction, value)
	}
	if local.Before(now) {
		next := now.In(loc).Year() + 1
		local = time.Date(next, local.Month(), local.Day(), local.Hour(), local.Minute(), 0, 0, loc)
	}
	return local.UTC(), nil
}
