// Package storetest holds the behaviour every repository.Store must share.
// Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/repository"
)

// Opener returns a ready store; Run closes it.
type Opener func(t *testing.T) repository.Store

// Run exercises st against the Store contract. Every case uses its own
// user id and instant so backends shared between runs do not interfere.
func Run(t *testing.T, open Opener) {
	cases := []struct {
		name string
		fn   func(t *testing.T, st repository.Store, user int64, now time.Time)
	}{
		{"CreateReminderNeverDeduplicates", testNoDedup},
		{"DueWindowBoundaries", testDueWindow},
		{"DueSkipsSentAndCarriesTimezone", testDueSentAndTimezone},
		{"CascadeRemovesEverySibling", testCascade},
		{"DeleteReminderScopedToOwner", testDeleteReminder},
		{"DeleteNotificationAndMarkSent", testDeleteNotification},
		{"ListingOrderAndDisplayIDs", testListing},
		{"StaleListingRejected", testStaleListing},
		{"TimezoneDefaultAndUpsert", testTimezone},
		{"ClosedStoreUnavailable", testClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := open(t)
			t.Cleanup(func() { _ = st.Close() })
			user := rand.Int64N(1<<40) + 1
			// Whole seconds keep every backend's precision.
			now := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC).
				Add(time.Duration(rand.Int64N(1<<20)) * time.Minute)
			tc.fn(t, st, user, now)
		})
	}
}

func mustReminder(t *testing.T, st repository.Store, user int64, desc string, at time.Time) *models.Reminder {
	t.Helper()
	r, err := st.CreateReminder(context.Background(), user, desc, at)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	return r
}

func mustNotification(t *testing.T, st repository.Store, r *models.Reminder, fireAt time.Time, main bool) *models.Notification {
	t.Helper()
	n := &models.Notification{
		ReminderKey: r.Key,
		UserID:      r.UserID,
		FireAt:      fireAt,
		Description: r.Description,
		LeadLabel:   "lead",
		Category:    models.CategoryReminder,
		IsMain:      main,
	}
	if main {
		n.LeadLabel = "right now"
		n.Category = models.CategoryMain
	}
	if err := st.CreateNotification(context.Background(), n); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if n.ID == 0 {
		t.Fatalf("CreateNotification did not assign an id")
	}
	return n
}

// dueFor filters a due query down to one user.
func dueFor(t *testing.T, st repository.Store, user int64, now time.Time, window time.Duration) []*models.DueNotification {
	t.Helper()
	all, err := st.DueNotifications(context.Background(), now, window)
	if err != nil {
		t.Fatalf("DueNotifications: %v", err)
	}
	var out []*models.DueNotification
	for _, d := range all {
		if d.UserID == user {
			out = append(out, d)
		}
	}
	return out
}

func testNoDedup(t *testing.T, st repository.Store, user int64, now time.Time) {
	at := now.Add(48 * time.Hour)
	a := mustReminder(t, st, user, "Dentist", at)
	b := mustReminder(t, st, user, "Dentist", at)
	if a.Key == "" || a.Key == b.Key {
		t.Fatalf("expected two distinct keys, got %q and %q", a.Key, b.Key)
	}
	if !a.EventAt.Equal(at) || a.EventAt.Location() != time.UTC {
		t.Fatalf("event time = %v, want %v in UTC", a.EventAt, at)
	}

	listing, err := st.ListReminders(context.Background(), user)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(listing.Entries) != 2 {
		t.Fatalf("listing has %d reminders, want 2", len(listing.Entries))
	}
}

func testDueWindow(t *testing.T, st repository.Store, user int64, now time.Time) {
	window := time.Minute
	r := mustReminder(t, st, user, "Standup", now.Add(24*time.Hour))

	mustNotification(t, st, r, now.Add(-window-time.Second), false)
	lower := mustNotification(t, st, r, now.Add(-window), false)
	upper := mustNotification(t, st, r, now.Add(window), false)
	mustNotification(t, st, r, now.Add(window+time.Second), false)

	due := dueFor(t, st, user, now, window)
	if len(due) != 2 {
		t.Fatalf("got %d due notifications, want 2", len(due))
	}
	if due[0].ID != lower.ID || due[1].ID != upper.ID {
		t.Fatalf("due ids = [%d %d], want [%d %d]", due[0].ID, due[1].ID, lower.ID, upper.ID)
	}
	if !due[0].FireAt.Equal(now.Add(-window)) {
		t.Fatalf("fire time = %v, want %v", due[0].FireAt, now.Add(-window))
	}
	if !due[0].EventAt.Equal(r.EventAt) {
		t.Fatalf("event time = %v, want %v", due[0].EventAt, r.EventAt)
	}
}

func testDueSentAndTimezone(t *testing.T, st repository.Store, user int64, now time.Time) {
	ctx := context.Background()
	r := mustReminder(t, st, user, "Call mom", now)
	main := mustNotification(t, st, r, now, true)

	due := dueFor(t, st, user, now, time.Minute)
	if len(due) != 1 {
		t.Fatalf("got %d due, want 1", len(due))
	}
	if due[0].Timezone != models.DefaultTimezone {
		t.Fatalf("timezone = %q, want default %q", due[0].Timezone, models.DefaultTimezone)
	}
	if !due[0].IsMain || due[0].Category != models.CategoryMain {
		t.Fatalf("main flags lost: %+v", due[0].Notification)
	}

	if err := st.SetTimezone(ctx, user, "Etc/GMT-3"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}
	due = dueFor(t, st, user, now, time.Minute)
	if len(due) != 1 || due[0].Timezone != "Etc/GMT-3" {
		t.Fatalf("expected stored timezone on due row, got %+v", due)
	}

	if err := st.MarkSent(ctx, main.ID); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if due := dueFor(t, st, user, now, time.Minute); len(due) != 0 {
		t.Fatalf("sent notification still due: %+v", due)
	}
}

func testCascade(t *testing.T, st repository.Store, user int64, now time.Time) {
	ctx := context.Background()
	r := mustReminder(t, st, user, "Flight", now)
	mustNotification(t, st, r, now, true)
	mustNotification(t, st, r, now.Add(-2*time.Hour), false)
	// Far outside any window around now.
	mustNotification(t, st, r, now.Add(-72*time.Hour), false)

	other := mustReminder(t, st, user, "Hotel", now.Add(time.Hour))
	mustNotification(t, st, other, now.Add(time.Hour), true)

	removed, err := st.DeleteReminderCascade(ctx, r.Key)
	if err != nil {
		t.Fatalf("DeleteReminderCascade: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed %d notifications, want 3", removed)
	}

	listing, err := st.ListReminders(ctx, user)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(listing.Entries) != 1 || listing.Entries[0].Reminder.Key != other.Key {
		t.Fatalf("expected only the untouched reminder to remain, got %d entries", len(listing.Entries))
	}
	if due := dueFor(t, st, user, now, 100*time.Hour); len(due) != 1 {
		t.Fatalf("expected only the other reminder's alert, got %d", len(due))
	}

	// Already gone: still fine.
	if removed, err := st.DeleteReminderCascade(ctx, r.Key); err != nil || removed != 0 {
		t.Fatalf("second cascade = %d, %v; want 0, nil", removed, err)
	}
}

func testDeleteReminder(t *testing.T, st repository.Store, user int64, now time.Time) {
	ctx := context.Background()
	r := mustReminder(t, st, user, "Gym", now.Add(time.Hour))
	mustNotification(t, st, r, now.Add(time.Hour), true)

	if err := st.DeleteReminder(ctx, user+1, r.Key); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("delete by another user: got %v, want ErrNotFound", err)
	}
	if err := st.DeleteReminder(ctx, user, r.Key); err != nil {
		t.Fatalf("DeleteReminder: %v", err)
	}
	if err := st.DeleteReminder(ctx, user, r.Key); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
	if due := dueFor(t, st, user, now.Add(time.Hour), time.Minute); len(due) != 0 {
		t.Fatalf("notifications survived their reminder: %+v", due)
	}
}

func testDeleteNotification(t *testing.T, st repository.Store, user int64, now time.Time) {
	ctx := context.Background()
	r := mustReminder(t, st, user, "Pay rent", now.Add(3*time.Hour))
	batch := []*models.Notification{
		{ReminderKey: r.Key, UserID: user, FireAt: r.EventAt, Description: r.Description,
			LeadLabel: "right now", IsMain: true, Category: models.CategoryMain},
		{ReminderKey: r.Key, UserID: user, FireAt: now, Description: r.Description,
			LeadLabel: "3 hours before", Category: models.CategoryReminder},
	}
	if err := st.CreateNotifications(ctx, batch); err != nil {
		t.Fatalf("CreateNotifications: %v", err)
	}
	if batch[0].ID == 0 || batch[1].ID == 0 || batch[0].ID == batch[1].ID {
		t.Fatalf("batch ids not assigned: %d, %d", batch[0].ID, batch[1].ID)
	}

	if err := st.DeleteNotification(ctx, batch[1].ID); err != nil {
		t.Fatalf("DeleteNotification: %v", err)
	}
	if err := st.DeleteNotification(ctx, batch[1].ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
	if err := st.MarkSent(ctx, batch[1].ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("MarkSent on deleted row: got %v, want ErrNotFound", err)
	}
	if due := dueFor(t, st, user, r.EventAt, time.Minute); len(due) != 1 || due[0].ID != batch[0].ID {
		t.Fatalf("main alert should be untouched, got %+v", due)
	}
}

func testListing(t *testing.T, st repository.Store, user int64, now time.Time) {
	ctx := context.Background()
	later := mustReminder(t, st, user, "Later", now.Add(96*time.Hour))
	earlier := mustReminder(t, st, user, "Earlier", now.Add(48*time.Hour))
	mustNotification(t, st, earlier, earlier.EventAt, true)
	mustNotification(t, st, earlier, earlier.EventAt.Add(-2*time.Hour), false)
	mustNotification(t, st, earlier, earlier.EventAt.Add(-24*time.Hour), false)

	listing, err := st.ListReminders(ctx, user)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(listing.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(listing.Entries))
	}
	first, second := listing.Entries[0], listing.Entries[1]
	if first.DisplayID != 1 || first.Reminder.Key != earlier.Key {
		t.Fatalf("display id 1 should be the earlier event, got %d -> %s", first.DisplayID, first.Reminder.Description)
	}
	if second.DisplayID != 2 || second.Reminder.Key != later.Key {
		t.Fatalf("display id 2 should be the later event, got %d -> %s", second.DisplayID, second.Reminder.Description)
	}
	if len(first.Notifications) != 2 {
		t.Fatalf("expected the two lead alerts without the main one, got %d", len(first.Notifications))
	}
	if !first.Notifications[0].FireAt.Before(first.Notifications[1].FireAt) {
		t.Fatalf("lead alerts not ordered by fire time")
	}
	if len(second.Notifications) != 0 {
		t.Fatalf("reminder without notifications got %d", len(second.Notifications))
	}

	key, err := st.ResolveDisplayID(ctx, user, listing.Generation, 1)
	if err != nil || key != earlier.Key {
		t.Fatalf("ResolveDisplayID(1) = %q, %v; want %q", key, err, earlier.Key)
	}
	if k, ok := listing.Key(2); !ok || k != later.Key {
		t.Fatalf("listing.Key(2) = %q, %v", k, ok)
	}
	if _, err := st.ResolveDisplayID(ctx, user, listing.Generation, 3); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown display id: got %v, want ErrNotFound", err)
	}

	if err := st.DeleteReminder(ctx, user, key); err != nil {
		t.Fatalf("DeleteReminder: %v", err)
	}
	relisted, err := st.ListReminders(ctx, user)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(relisted.Entries) != 1 || relisted.Entries[0].DisplayID != 1 || relisted.Entries[0].Reminder.Key != later.Key {
		t.Fatalf("after re-render the remaining reminder should be #1")
	}
}

func testStaleListing(t *testing.T, st repository.Store, user int64, now time.Time) {
	ctx := context.Background()
	a := mustReminder(t, st, user, "A", now.Add(time.Hour))

	if _, err := st.ResolveDisplayID(ctx, user, 1, 1); !errors.Is(err, repository.ErrStaleListing) {
		t.Fatalf("resolve before any listing: got %v, want ErrStaleListing", err)
	}

	old, err := st.ListReminders(ctx, user)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	b := mustReminder(t, st, user, "B", now.Add(time.Minute))
	fresh, err := st.ListReminders(ctx, user)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if fresh.Generation <= old.Generation {
		t.Fatalf("generation did not advance: %d -> %d", old.Generation, fresh.Generation)
	}

	if _, err := st.ResolveDisplayID(ctx, user, old.Generation, 1); !errors.Is(err, repository.ErrStaleListing) {
		t.Fatalf("old render: got %v, want ErrStaleListing", err)
	}
	if _, err := st.ResolveDisplayID(ctx, user, old.Generation, 9); !errors.Is(err, repository.ErrStaleListing) {
		t.Fatalf("old render, unknown id: got %v, want ErrStaleListing", err)
	}
	if key, err := st.ResolveDisplayID(ctx, user, fresh.Generation, 1); err != nil || key != b.Key {
		t.Fatalf("fresh render #1 = %q, %v; want %q", key, err, b.Key)
	}
	// Generation 0 resolves against whatever is current.
	if key, err := st.ResolveDisplayID(ctx, user, 0, 2); err != nil || key != a.Key {
		t.Fatalf("best-effort #2 = %q, %v; want %q", key, err, a.Key)
	}
}

func testTimezone(t *testing.T, st repository.Store, user int64, _ time.Time) {
	ctx := context.Background()
	zone, err := st.GetTimezone(ctx, user)
	if err != nil {
		t.Fatalf("GetTimezone: %v", err)
	}
	if zone != models.DefaultTimezone {
		t.Fatalf("default zone = %q, want %q", zone, models.DefaultTimezone)
	}

	for _, z := range []string{"Etc/GMT-3", "Etc/GMT-5"} {
		if err := st.SetTimezone(ctx, user, z); err != nil {
			t.Fatalf("SetTimezone(%q): %v", z, err)
		}
	}
	zone, err = st.GetTimezone(ctx, user)
	if err != nil {
		t.Fatalf("GetTimezone: %v", err)
	}
	if zone != "Etc/GMT-5" {
		t.Fatalf("zone = %q, want last write Etc/GMT-5", zone)
	}
}

func testClosed(t *testing.T, st repository.Store, user int64, now time.Time) {
	ctx := context.Background()
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	checks := map[string]error{}
	_, checks["CreateReminder"] = st.CreateReminder(ctx, user, "x", now)
	_, checks["DueNotifications"] = st.DueNotifications(ctx, now, time.Minute)
	_, checks["ListReminders"] = st.ListReminders(ctx, user)
	_, checks["DeleteReminderCascade"] = st.DeleteReminderCascade(ctx, "missing")
	_, checks["GetTimezone"] = st.GetTimezone(ctx, user)
	checks["SetTimezone"] = st.SetTimezone(ctx, user, "UTC")
	checks["MarkSent"] = st.MarkSent(ctx, 1)
	checks["DeleteReminder"] = st.DeleteReminder(ctx, user, "missing")
	checks["CreateNotifications"] = st.CreateNotifications(ctx, nil)

	for op, err := range checks {
		if !errors.Is(err, repository.ErrUnavailable) {
			t.Fatalf("%s on closed store: got %v, want ErrUnavailable", op, err)
		}
	}
}
