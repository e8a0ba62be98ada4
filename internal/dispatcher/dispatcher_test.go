package dispatcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hray3182/nudge/internal/format"
	"github.com/hray3182/nudge/internal/models"
)

func due(main bool, zone string) *models.DueNotification {
	n := &models.DueNotification{
		Notification: models.Notification{
			ID:          7,
			UserID:      42,
			Description: "Dentist",
			LeadLabel:   "2 hours before",
			Category:    models.CategoryReminder,
		},
		EventAt:  time.Date(2031, 3, 25, 11, 30, 0, 0, time.UTC),
		Timezone: zone,
	}
	if main {
		n.IsMain = true
		n.LeadLabel = "right now"
		n.Category = models.CategoryMain
	}
	return n
}

func TestRenderLead(t *testing.T) {
	text := Render(due(false, "Etc/GMT-3"))
	for _, want := range []string{"**Dentist**", "2 hours before", "25.03.2031 14:30", "GMT+3"} {
		if !strings.Contains(text, want) {
			t.Fatalf("lead text %q missing %q", text, want)
		}
	}
	if strings.Contains(text, "happening now") {
		t.Fatalf("lead text uses main wording: %q", text)
	}
}

func TestRenderMain(t *testing.T) {
	text := Render(due(true, "UTC"))
	if !strings.Contains(text, "happening now") || !strings.Contains(text, "25.03.2031 11:30") {
		t.Fatalf("unexpected main text %q", text)
	}
}

func TestRenderKeepsMarkersInDescription(t *testing.T) {
	n := due(true, "UTC")
	n.Description = "Pay **rent** `now`"

	res := format.ParseMarkdown(Render(n))
	if !strings.HasPrefix(res.Text, "🔔 Pay **rent** `now` is happening now!") {
		t.Fatalf("text = %q", res.Text)
	}
	if len(res.Entities) != 2 {
		t.Fatalf("entities = %+v, want description and date in bold", res.Entities)
	}
	if e := res.Entities[0]; e.Type != "bold" || e.Offset != 3 || e.Length != format.UTF16Len(n.Description) {
		t.Fatalf("description entity = %+v", e)
	}
}

func TestDispatch(t *testing.T) {
	var gotUser int64
	var gotText string
	d := New(SenderFunc(func(_ context.Context, userID int64, text string) error {
		gotUser, gotText = userID, text
		return nil
	}))

	n := due(false, "Etc/GMT+5")
	if err := d.Dispatch(context.Background(), n); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if gotUser != 42 || gotText != Render(n) {
		t.Fatalf("sent %d %q", gotUser, gotText)
	}
}

func TestDispatchPropagatesError(t *testing.T) {
	boom := errors.New("telegram down")
	d := New(SenderFunc(func(context.Context, int64, string) error { return boom }))

	if err := d.Dispatch(context.Background(), due(true, "UTC")); !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped %v", err, boom)
	}
}
