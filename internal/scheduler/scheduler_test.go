package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/repository"
	"github.com/hray3182/nudge/internal/repository/sqlite"
)

var testNow = time.Date(2031, 3, 20, 12, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []int64
	fail map[int64]error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n *models.DueNotification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[n.ID]; err != nil {
		return err
	}
	d.sent = append(d.sent, n.ID)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

// flakyStore fails the first N retirement calls the way a crash between
// send and delete would.
type flakyStore struct {
	repository.Store
	cascadeFailures int
	deleteFailures  int
	markFailures    int
}

var errInjected = errors.New("injected failure")

func (f *flakyStore) DeleteReminderCascade(ctx context.Context, key string) (int, error) {
	if f.cascadeFailures > 0 {
		f.cascadeFailures--
		return 0, repository.Unavailable("delete reminder cascade", errInjected)
	}
	return f.Store.DeleteReminderCascade(ctx, key)
}

func (f *flakyStore) DeleteNotification(ctx context.Context, id int64) error {
	if f.deleteFailures > 0 {
		f.deleteFailures--
		return repository.Unavailable("delete notification", errInjected)
	}
	return f.Store.DeleteNotification(ctx, id)
}

func (f *flakyStore) MarkSent(ctx context.Context, id int64) error {
	if f.markFailures > 0 {
		f.markFailures--
		return repository.Unavailable("mark sent", errInjected)
	}
	return f.Store.MarkSent(ctx, id)
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "nudge.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newScheduler(store repository.Store, d Dispatcher) *Scheduler {
	s := New(store, d, zerolog.Nop(), time.Minute, time.Minute)
	s.now = func() time.Time { return testNow }
	return s
}

// seed creates a reminder with a main alert at eventAt and lead alerts at
// each of leads.
func seed(t *testing.T, st repository.Store, user int64, eventAt time.Time, leads ...time.Time) (*models.Reminder, []*models.Notification) {
	t.Helper()
	ctx := context.Background()
	r, err := st.CreateReminder(ctx, user, "Dentist", eventAt)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	batch := []*models.Notification{{
		ReminderKey: r.Key, UserID: user, FireAt: eventAt, Description: r.Description,
		LeadLabel: "right now", IsMain: true, Category: models.CategoryMain,
	}}
	for _, at := range leads {
		batch = append(batch, &models.Notification{
			ReminderKey: r.Key, UserID: user, FireAt: at, Description: r.Description,
			LeadLabel: "lead", Category: models.CategoryReminder,
		})
	}
	if err := st.CreateNotifications(ctx, batch); err != nil {
		t.Fatalf("CreateNotifications: %v", err)
	}
	return r, batch
}

func TestRunOnceSendsLeadAndKeepsReminder(t *testing.T) {
	st := openStore(t)
	_, batch := seed(t, st, 1, testNow.Add(2*time.Hour), testNow)
	d := &recordingDispatcher{}
	s := newScheduler(st, d)

	stats := s.RunOnce(context.Background())
	if stats.Due != 1 || stats.Sent != 1 || stats.Retired != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if d.sent[0] != batch[1].ID {
		t.Fatalf("sent %v, want lead alert %d", d.sent, batch[1].ID)
	}

	if again := s.RunOnce(context.Background()); again.Due != 0 {
		t.Fatalf("lead alert was not retired: %+v", again)
	}
	listing, err := st.ListReminders(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(listing.Entries) != 1 {
		t.Fatalf("reminder should survive a lead alert")
	}
}

func TestRunOnceMainCascades(t *testing.T) {
	st := openStore(t)
	// One lead alert is still days away; the main fire must remove it too.
	seed(t, st, 1, testNow, testNow.Add(-72*time.Hour))
	d := &recordingDispatcher{}
	s := newScheduler(st, d)

	stats := s.RunOnce(context.Background())
	if stats.Sent != 1 || stats.Retired != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	listing, err := st.ListReminders(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if !listing.Empty() {
		t.Fatalf("main fire should remove the reminder")
	}
	due, err := st.DueNotifications(context.Background(), testNow, 100*time.Hour)
	if err != nil {
		t.Fatalf("DueNotifications: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("siblings survived the cascade: %d", len(due))
	}
}

func TestRunOnceFailureLeavesRowAndContinues(t *testing.T) {
	st := openStore(t)
	_, a := seed(t, st, 1, testNow.Add(3*time.Hour), testNow)
	_, b := seed(t, st, 2, testNow.Add(3*time.Hour), testNow)
	d := &recordingDispatcher{fail: map[int64]error{a[1].ID: errors.New("blocked by user")}}
	s := newScheduler(st, d)

	stats := s.RunOnce(context.Background())
	if stats.Due != 2 || stats.Sent != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if d.sent[0] != b[1].ID {
		t.Fatalf("second user's alert not sent: %v", d.sent)
	}

	due, err := st.DueNotifications(context.Background(), testNow, time.Minute)
	if err != nil {
		t.Fatalf("DueNotifications: %v", err)
	}
	if len(due) != 1 || due[0].ID != a[1].ID {
		t.Fatalf("failed alert should stay pending, got %+v", due)
	}
}

func TestRunOnceCascadeFailureAtMostOneDuplicate(t *testing.T) {
	st := &flakyStore{Store: openStore(t), cascadeFailures: 1}
	seed(t, st, 1, testNow)
	d := &recordingDispatcher{}
	s := newScheduler(st, d)

	first := s.RunOnce(context.Background())
	if first.Sent != 1 || first.Retired != 0 {
		t.Fatalf("first check = %+v", first)
	}
	second := s.RunOnce(context.Background())
	if second.Sent != 1 || second.Retired != 1 {
		t.Fatalf("second check = %+v", second)
	}
	third := s.RunOnce(context.Background())
	if third.Due != 0 {
		t.Fatalf("reminder still due after retry: %+v", third)
	}
	if d.count() != 2 {
		t.Fatalf("sent %d times, want exactly one duplicate", d.count())
	}
}

func TestRunOnceDeleteFailureMarksSent(t *testing.T) {
	st := &flakyStore{Store: openStore(t), deleteFailures: 1}
	seed(t, st, 1, testNow.Add(5*time.Hour), testNow)
	d := &recordingDispatcher{}
	s := newScheduler(st, d)

	if stats := s.RunOnce(context.Background()); stats.Retired != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats := s.RunOnce(context.Background()); stats.Due != 0 {
		t.Fatalf("marked alert came back: %+v", stats)
	}
	if d.count() != 1 {
		t.Fatalf("sent %d times, want 1", d.count())
	}
}

func TestRunOnceCrashBeforeRetireResendsOnce(t *testing.T) {
	st := &flakyStore{Store: openStore(t), deleteFailures: 1, markFailures: 1}
	seed(t, st, 1, testNow.Add(5*time.Hour), testNow)
	d := &recordingDispatcher{}
	s := newScheduler(st, d)

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	if d.count() != 2 {
		t.Fatalf("sent %d times, want 2", d.count())
	}
}

func TestRunOnceStoreDown(t *testing.T) {
	st := openStore(t)
	st.Close()
	s := newScheduler(st, &recordingDispatcher{})

	if stats := s.RunOnce(context.Background()); stats != (Stats{}) {
		t.Fatalf("stats = %+v, want zero", stats)
	}
}

type blockingDispatcher struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (d *blockingDispatcher) Dispatch(ctx context.Context, _ *models.DueNotification) error {
	d.calls.Add(1)
	d.entered <- struct{}{}
	<-d.release
	return nil
}

func TestOverlappingCheckIsSkipped(t *testing.T) {
	st := openStore(t)
	seed(t, st, 1, testNow.Add(5*time.Hour), testNow)
	d := &blockingDispatcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := newScheduler(st, d)
	job := s.guardedJob(context.Background())

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-d.entered

	// The first check is still sending; this one must return without work.
	job.Run()
	if got := d.calls.Load(); got != 1 {
		t.Fatalf("dispatch called %d times while a check was running", got)
	}

	close(d.release)
	<-done
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	st := openStore(t)
	seed(t, st, 1, testNow.Add(5*time.Hour), testNow)
	d := &recordingDispatcher{}
	s := newScheduler(st, d)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(stopped)
	}()

	deadline := time.After(5 * time.Second)
	for d.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("first check did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}
	s.Notify()
	s.Notify()

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}

func TestStopWaitsForRunningCheck(t *testing.T) {
	st := openStore(t)
	seed(t, st, 1, testNow.Add(5*time.Hour), testNow)
	d := &blockingDispatcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := newScheduler(st, d)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(stopped)
	}()

	select {
	case <-d.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("first check did not dispatch")
	}
	cancel()

	select {
	case <-stopped:
		t.Fatalf("Start returned while a dispatch was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(d.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduler did not stop after the check finished")
	}

	// The check retired its alert before Start returned.
	due, err := st.DueNotifications(context.Background(), testNow, time.Minute)
	if err != nil {
		t.Fatalf("DueNotifications: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("alert left pending after shutdown: %+v", due)
	}
}

func TestNewWidensNarrowWindow(t *testing.T) {
	s := New(nil, nil, zerolog.Nop(), 5*time.Minute, time.Minute)
	if 2*s.window < s.interval {
		t.Fatalf("window %v leaves gaps between checks every %v", s.window, s.interval)
	}

	s = New(nil, nil, zerolog.Nop(), time.Minute, 30*time.Second)
	if s.window != 30*time.Second {
		t.Fatalf("window = %v, want 30s kept as is", s.window)
	}
}

func TestNewDefaults(t *testing.T) {
	s := New(nil, nil, zerolog.Nop(), 0, -1)
	if s.interval != DefaultInterval || s.window != DefaultWindow {
		t.Fatalf("defaults = %v/%v", s.interval, s.window)
	}
}
