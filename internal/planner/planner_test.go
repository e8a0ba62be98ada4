package planner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hray3182/nudge/internal/leadtime"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/repository"
	"github.com/hray3182/nudge/internal/repository/sqlite"
)

var testNow = time.Date(2031, 3, 20, 12, 0, 0, 0, time.UTC)

func newPlanner(t *testing.T) (*Planner, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "nudge.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	p := New(st, leadtime.Default(), zerolog.Nop())
	p.now = func() time.Time { return testNow }
	return p, st
}

func fireTimes(ns []*models.Notification) []time.Time {
	out := make([]time.Time, len(ns))
	for i, n := range ns {
		out[i] = n.FireAt
	}
	return out
}

func TestPlanAllAlertsInFuture(t *testing.T) {
	p, st := newPlanner(t)
	event := testNow.Add(10 * 24 * time.Hour)

	res, err := p.Plan(context.Background(), 1, "Dentist", event, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if res.Reminder == nil || res.ReminderKey == "" {
		t.Fatalf("expected a new reminder, got %+v", res)
	}
	if len(res.Notifications) != 5 {
		t.Fatalf("got %d notifications, want 5", len(res.Notifications))
	}

	want := []time.Time{
		event,
		event.Add(-72 * time.Hour),
		event.Add(-48 * time.Hour),
		event.Add(-24 * time.Hour),
		event.Add(-2 * time.Hour),
	}
	for i, got := range fireTimes(res.Notifications) {
		if !got.Equal(want[i]) {
			t.Fatalf("notification %d fires at %v, want %v", i, got, want[i])
		}
	}

	mains := 0
	for _, n := range res.Notifications {
		if n.ID == 0 {
			t.Fatalf("notification %q not persisted", n.LeadLabel)
		}
		if n.ReminderKey != res.ReminderKey || n.Description != "Dentist" || n.UserID != 1 {
			t.Fatalf("notification not linked to its reminder: %+v", n)
		}
		if n.IsMain {
			mains++
			if !n.FireAt.Equal(res.Reminder.EventAt) || n.Category != models.CategoryMain {
				t.Fatalf("main alert wrong: %+v", n)
			}
		} else if !n.FireAt.Before(res.Reminder.EventAt) || n.Category != models.CategoryReminder {
			t.Fatalf("lead alert wrong: %+v", n)
		}
	}
	if mains != 1 {
		t.Fatalf("got %d main alerts, want 1", mains)
	}

	listing, err := st.ListReminders(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(listing.Entries) != 1 || len(listing.Entries[0].Notifications) != 4 {
		t.Fatalf("listing should show one reminder with 4 lead alerts")
	}
}

func TestPlanPrunesPastOffsets(t *testing.T) {
	p, _ := newPlanner(t)
	// 30 hours out: only "1 day before", "2 hours before" and the main alert remain.
	event := testNow.Add(30 * time.Hour)

	res, err := p.Plan(context.Background(), 1, "Flight", event, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(res.Notifications) != 3 {
		t.Fatalf("got %d notifications, want 3", len(res.Notifications))
	}
	for _, n := range res.Notifications {
		if !n.FireAt.After(testNow) {
			t.Fatalf("alert %q fires at %v, not after now", n.LeadLabel, n.FireAt)
		}
	}
}

func TestPlanNothingLeft(t *testing.T) {
	p, st := newPlanner(t)

	res, err := p.Plan(context.Background(), 1, "Too late", testNow.Add(-time.Minute), "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !res.Empty() || res.Reminder != nil || res.ReminderKey != "" {
		t.Fatalf("expected empty result without a reminder, got %+v", res)
	}

	listing, err := st.ListReminders(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if !listing.Empty() {
		t.Fatalf("no reminder should have been created")
	}
}

func TestPlanExactlyNowIsPruned(t *testing.T) {
	p, _ := newPlanner(t)
	res, err := p.Plan(context.Background(), 1, "Now", testNow, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !res.Empty() {
		t.Fatalf("an alert at exactly now should be pruned, got %d", len(res.Notifications))
	}
}

func TestPlanNoSilentMerge(t *testing.T) {
	p, st := newPlanner(t)
	event := testNow.Add(5 * 24 * time.Hour)

	a, err := p.Plan(context.Background(), 1, "Standup", event, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	b, err := p.Plan(context.Background(), 1, "Standup", event, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if a.ReminderKey == b.ReminderKey {
		t.Fatalf("second plan reused reminder %q", a.ReminderKey)
	}

	due, err := st.DueNotifications(context.Background(), event, time.Minute)
	if err != nil {
		t.Fatalf("DueNotifications: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected two independent main alerts, got %d", len(due))
	}
}

func TestPlanWithExistingKey(t *testing.T) {
	p, st := newPlanner(t)
	event := testNow.Add(3 * time.Hour)
	r, err := st.CreateReminder(context.Background(), 1, "Call", event)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	res, err := p.Plan(context.Background(), 1, "Call", event, r.Key)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if res.Reminder != nil || res.ReminderKey != r.Key {
		t.Fatalf("expected plan to attach to %q, got %+v", r.Key, res)
	}

	listing, err := st.ListReminders(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(listing.Entries) != 1 {
		t.Fatalf("got %d reminders, want 1", len(listing.Entries))
	}
}

func TestPlanNormalizesToMinute(t *testing.T) {
	p, _ := newPlanner(t)
	loc := time.FixedZone("GMT+3", 3*3600)
	event := time.Date(2031, 3, 25, 14, 30, 42, 500, loc)

	res, err := p.Plan(context.Background(), 1, "Meeting", event, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := time.Date(2031, 3, 25, 11, 30, 0, 0, time.UTC)
	if !res.EventAt.Equal(want) || res.EventAt.Location() != time.UTC {
		t.Fatalf("event = %v, want %v", res.EventAt, want)
	}
}

func TestPlanStoreFailure(t *testing.T) {
	p, st := newPlanner(t)
	st.Close()

	_, err := p.Plan(context.Background(), 1, "Dentist", testNow.Add(time.Hour), "")
	if !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestPlanRequiresDescription(t *testing.T) {
	p, _ := newPlanner(t)
	if _, err := p.Plan(context.Background(), 1, "", testNow.Add(time.Hour), ""); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("got %v, want ErrEmptyDescription", err)
	}
}
