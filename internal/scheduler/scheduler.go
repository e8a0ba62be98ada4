package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hray3182/nudge/internal/logging"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/repository"
)

const (
	DefaultInterval = time.Minute
	DefaultWindow   = time.Minute
)

// Dispatcher delivers one due notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *models.DueNotification) error
}

type Scheduler struct {
	store      repository.Store
	dispatcher Dispatcher
	log        zerolog.Logger
	interval   time.Duration
	window     time.Duration
	now        func() time.Time
	notifyCh   chan struct{}
}

// Stats summarises one check.
type Stats struct {
	Due     int
	Sent    int
	Failed  int
	Retired int
}

func New(store repository.Store, dispatcher Dispatcher, log zerolog.Logger, interval, window time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if window <= 0 {
		window = DefaultWindow
	}
	// Consecutive checks cover [now-window, now+window]; wider gaps lose alerts.
	if 2*window < interval {
		widened := (interval + 1) / 2
		log.Warn().Dur("interval", interval).Dur("window", window).Dur("widened_to", widened).
			Msg("due window too narrow for poll interval")
		window = widened
	}
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		log:        log,
		interval:   interval,
		window:     window,
		now:        time.Now,
		notifyCh:   make(chan struct{}, 1),
	}
}

// Notify triggers an immediate check. Non-blocking if a check is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Start runs the poll loop until ctx is cancelled. The first check runs
// right away; a check that would overlap a running one is skipped. Start
// returns only after every check it started has finished.
func (s *Scheduler) Start(ctx context.Context) {
	job := s.guardedJob(ctx)

	var running sync.WaitGroup
	runNow := func() {
		running.Add(1)
		go func() {
			defer running.Done()
			job.Run()
		}()
	}

	c := cron.New(cron.WithLogger(logging.CronLogger{Log: s.log}))
	c.Schedule(cron.Every(s.interval), job)
	c.Start()
	s.log.Info().Dur("interval", s.interval).Dur("window", s.window).Msg("scheduler started")

	runNow()

	for {
		select {
		case <-ctx.Done():
			<-c.Stop().Done()
			running.Wait()
			s.log.Info().Msg("scheduler stopped")
			return
		case <-s.notifyCh:
			s.log.Debug().Msg("scheduler triggered by notification")
			runNow()
		}
	}
}

// guardedJob wraps one check so panics are logged and overlapping runs
// are dropped instead of queued.
func (s *Scheduler) guardedJob(ctx context.Context) cron.Job {
	l := logging.CronLogger{Log: s.log}
	return cron.NewChain(cron.Recover(l), cron.SkipIfStillRunning(l)).Then(cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		s.RunOnce(ctx)
	}))
}

// RunOnce performs a single check: fetch what is due, dispatch it in fire
// order and retire what was delivered. One notification failing never stops
// the rest.
func (s *Scheduler) RunOnce(ctx context.Context) Stats {
	var st Stats
	now := s.now()

	due, err := s.store.DueNotifications(ctx, now, s.window)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load due notifications")
		return st
	}
	st.Due = len(due)
	if st.Due == 0 {
		return st
	}

	for _, n := range due {
		if ctx.Err() != nil {
			break
		}
		if err := s.dispatcher.Dispatch(ctx, n); err != nil {
			st.Failed++
			s.log.Warn().Err(err).
				Int64("notification", n.ID).
				Int64("user_id", n.UserID).
				Msg("failed to send notification")
			continue
		}
		st.Sent++
		// Delivered alerts are retired even when shutdown has begun.
		if s.retire(context.WithoutCancel(ctx), n) {
			st.Retired++
		}
	}

	s.log.Info().
		Int("due", st.Due).
		Int("sent", st.Sent).
		Int("failed", st.Failed).
		Msg("checked notifications")
	return st
}

// retire removes a delivered notification. The main alert takes its whole
// reminder with it; if that fails the row stays and the next check resends
// it. A lead alert that cannot be deleted is marked sent instead.
func (s *Scheduler) retire(ctx context.Context, n *models.DueNotification) bool {
	log := s.log.With().Int64("notification", n.ID).Str("reminder", n.ReminderKey).Logger()

	if n.IsMain {
		removed, err := s.store.DeleteReminderCascade(ctx, n.ReminderKey)
		if err != nil {
			log.Error().Err(err).Msg("failed to delete fired reminder, will retry next check")
			return false
		}
		log.Info().Int("removed", removed).Msg("reminder fired and removed")
		return true
	}

	err := s.store.DeleteNotification(ctx, n.ID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, repository.ErrNotFound):
		// Reminder deleted by the user while we were sending.
		return true
	}
	log.Warn().Err(err).Msg("failed to delete sent notification, marking it sent")
	if err := s.store.MarkSent(ctx, n.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Error().Err(err).Msg("failed to mark notification sent")
		return false
	}
	return true
}
