// Package dispatcher renders a due notification for its user and hands it
// to the chat transport.
package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/hray3182/nudge/internal/format"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/timezone"
)

// Sender delivers text to a user. Text may carry **bold** markup.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, userID int64, text string) error

func (f SenderFunc) Send(ctx context.Context, userID int64, text string) error {
	return f(ctx, userID, text)
}

type Dispatcher struct {
	sender Sender
}

func New(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Dispatch sends one notification. Errors come straight from the sender;
// nothing is retried here.
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.DueNotification) error {
	if err := d.sender.Send(ctx, n.UserID, Render(n)); err != nil {
		return fmt.Errorf("send notification %d: %w", n.ID, err)
	}
	return nil
}

// Render builds the alert text with the event time in the user's zone.
func Render(n *models.DueNotification) string {
	when := timezone.Format(n.EventAt, n.Timezone)
	description := format.Escape(n.Description)

	var b strings.Builder
	if n.IsMain {
		b.WriteString("🔔 **" + description + "** is happening now!\n")
	} else {
		b.WriteString("⏰ Reminder: **" + description + "** (" + format.Escape(n.LeadLabel) + ")\n")
	}
	b.WriteString("📅 **" + when + "** (" + timezone.Display(n.Timezone) + ")")
	return b.String()
}
