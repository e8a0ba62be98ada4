package format

import (
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

// UTF16Len calculates the UTF-16 length of a string.
// Telegram uses UTF-16 code units for entity offsets/lengths.
func UTF16Len(s string) int {
	length := 0
	for _, b := range []byte(s) {
		if (b & 0xc0) != 0x80 {
			if b >= 0xf0 {
				length += 2 // surrogate pair
			} else {
				length++
			}
		}
	}
	return length
}

var markers = []struct {
	token  string
	entity string
}{
	{"**", "bold"},
	{"`", "code"},
}

// Escape makes s literal inside ParseMarkdown input. Use it for any
// user-supplied text that ends up between markers.
func Escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if escapable(s[i]) {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func escapable(c byte) bool {
	return c == '\\' || c == '*' || c == '`'
}

// closing finds the next unescaped token in s, or -1.
func closing(s, token string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && escapable(s[i+1]) {
			i++
			continue
		}
		if strings.HasPrefix(s[i:], token) {
			return i
		}
	}
	return -1
}

func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && escapable(s[i+1]) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ParseMarkdown strips **bold** and `code` markers and returns them as
// Telegram entities. A backslash before a backslash, * or ` makes it literal (see
// Escape); an unmatched marker is left in the text.
func ParseMarkdown(text string) ParseResult {
	var (
		out      strings.Builder
		entities []tgbotapi.MessageEntity
	)

	rest := text
	for len(rest) > 0 {
		if rest[0] == '\\' && len(rest) > 1 && escapable(rest[1]) {
			out.WriteByte(rest[1])
			rest = rest[2:]
			continue
		}

		matched := false
		for _, m := range markers {
			if !strings.HasPrefix(rest, m.token) {
				continue
			}
			body := rest[len(m.token):]
			end := closing(body, m.token)
			if end <= 0 {
				continue
			}
			inner := unescape(body[:end])
			entities = append(entities, tgbotapi.MessageEntity{
				Type:   m.entity,
				Offset: UTF16Len(out.String()),
				Length: UTF16Len(inner),
			})
			out.WriteString(inner)
			rest = body[end+len(m.token):]
			matched = true
			break
		}
		if matched {
			continue
		}
		out.WriteByte(rest[0])
		rest = rest[1:]
	}

	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Offset < entities[j].Offset })

	return ParseResult{
		Text:     strings.TrimRight(out.String(), " \n"),
		Entities: entities,
	}
}
