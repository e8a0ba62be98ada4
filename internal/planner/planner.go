// Package planner expands one event into its reminder and the lead-time
// notifications that still lie in the future.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hray3182/nudge/internal/leadtime"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/repository"
)

var ErrEmptyDescription = errors.New("description is required")

// Result is what a Plan call persisted. An event too close to now for any
// alert yields a Result with no reminder and no notifications.
type Result struct {
	ReminderKey   string
	Reminder      *models.Reminder // nil when the key was supplied by the caller
	EventAt       time.Time
	Notifications []*models.Notification
}

func (r *Result) Empty() bool { return r == nil || len(r.Notifications) == 0 }

type Planner struct {
	store  repository.Store
	policy leadtime.Policy
	log    zerolog.Logger
	now    func() time.Time
}

func New(store repository.Store, policy leadtime.Policy, log zerolog.Logger) *Planner {
	if len(policy) == 0 {
		policy = leadtime.Default()
	}
	return &Planner{
		store:  store,
		policy: policy,
		log:    log,
		now:    time.Now,
	}
}

// Schedule returns the fire times the policy would produce for eventAt,
// keeping only those strictly after now. Nothing is persisted.
func (p *Planner) Schedule(eventAt, now time.Time) []*models.Notification {
	eventAt = eventAt.UTC().Truncate(time.Minute)
	var out []*models.Notification
	for _, o := range p.policy {
		fireAt := eventAt.Add(-o.Before)
		if !fireAt.After(now) {
			continue
		}
		out = append(out, &models.Notification{
			FireAt:    fireAt,
			LeadLabel: o.Label,
			IsMain:    o.Main,
			Category:  o.Category,
		})
	}
	return out
}

// Plan persists a reminder for the event (unless reminderKey names an
// existing one) and every alert that is still ahead. Re-planning the same
// event creates an independent reminder.
func (p *Planner) Plan(ctx context.Context, userID int64, description string, eventAt time.Time, reminderKey string) (*Result, error) {
	if description == "" {
		return nil, ErrEmptyDescription
	}
	eventAt = eventAt.UTC().Truncate(time.Minute)
	res := &Result{ReminderKey: reminderKey, EventAt: eventAt}

	batch := p.Schedule(eventAt, p.now())
	if len(batch) == 0 {
		p.log.Info().Int64("user_id", userID).Time("event_at", eventAt).Msg("no future alerts to plan")
		return res, nil
	}

	created := false
	if res.ReminderKey == "" {
		reminder, err := p.store.CreateReminder(ctx, userID, description, eventAt)
		if err != nil {
			return nil, fmt.Errorf("create reminder: %w", err)
		}
		res.Reminder = reminder
		res.ReminderKey = reminder.Key
		created = true
	}

	for _, n := range batch {
		n.ReminderKey = res.ReminderKey
		n.UserID = userID
		n.Description = description
	}
	if err := p.store.CreateNotifications(ctx, batch); err != nil {
		if created {
			if derr := p.store.DeleteReminder(ctx, userID, res.ReminderKey); derr != nil {
				p.log.Warn().Err(derr).Str("reminder", res.ReminderKey).Msg("failed to drop reminder after planning error")
			}
		}
		return nil, fmt.Errorf("create notifications: %w", err)
	}
	res.Notifications = batch

	p.log.Info().
		Int64("user_id", userID).
		Str("reminder", res.ReminderKey).
		Int("alerts", len(batch)).
		Time("event_at", eventAt).
		Msg("planned reminder")
	return res, nil
}
