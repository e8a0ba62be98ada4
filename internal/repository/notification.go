package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hray3182/nudge/internal/models"
)

const insertNotificationSQL = `INSERT INTO notifications
	(reminder_key, user_id, fire_at, description, lead_label, is_main, category)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`

func (p *Postgres) CreateNotification(ctx context.Context, n *models.Notification) error {
	const op = "create notification"
	if err := p.check(op); err != nil {
		return err
	}
	err := p.db.Pool.QueryRow(ctx, insertNotificationSQL,
		n.ReminderKey, n.UserID, n.FireAt.UTC(), n.Description, n.LeadLabel, n.IsMain, n.Category,
	).Scan(&n.ID)
	return Unavailable(op, err)
}

func (p *Postgres) CreateNotifications(ctx context.Context, batch []*models.Notification) error {
	if len(batch) == 0 {
		return p.check("create notifications")
	}
	return p.inTx(ctx, "create notifications", func(tx pgx.Tx) error {
		for _, n := range batch {
			if err := tx.QueryRow(ctx, insertNotificationSQL,
				n.ReminderKey, n.UserID, n.FireAt.UTC(), n.Description, n.LeadLabel, n.IsMain, n.Category,
			).Scan(&n.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) DueNotifications(ctx context.Context, now time.Time, window time.Duration) ([]*models.DueNotification, error) {
	const op = "due notifications"
	if err := p.check(op); err != nil {
		return nil, err
	}

	rows, err := p.db.Pool.Query(ctx,
		`SELECT n.id, n.reminder_key, n.user_id, n.fire_at, n.description, n.lead_label,
		        n.is_main, n.category, n.sent, r.event_at, COALESCE(us.timezone, $3)
		 FROM notifications n
		 JOIN reminders r ON r.key = n.reminder_key
		 LEFT JOIN user_settings us ON us.user_id = n.user_id
		 WHERE n.sent = FALSE AND n.fire_at >= $1 AND n.fire_at <= $2
		 ORDER BY n.fire_at ASC, n.id ASC`,
		now.Add(-window).UTC(), now.Add(window).UTC(), models.DefaultTimezone,
	)
	if err != nil {
		return nil, Unavailable(op, err)
	}
	defer rows.Close()

	var due []*models.DueNotification
	for rows.Next() {
		d := &models.DueNotification{}
		if err := rows.Scan(&d.ID, &d.ReminderKey, &d.UserID, &d.FireAt, &d.Description, &d.LeadLabel,
			&d.IsMain, &d.Category, &d.Sent, &d.EventAt, &d.Timezone); err != nil {
			return nil, Unavailable(op, err)
		}
		d.FireAt = d.FireAt.UTC()
		d.EventAt = d.EventAt.UTC()
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable(op, err)
	}
	return due, nil
}

func (p *Postgres) MarkSent(ctx context.Context, notificationID int64) error {
	return p.execOne(ctx, "mark sent",
		`UPDATE notifications SET sent = TRUE WHERE id = $1`, notificationID)
}

func (p *Postgres) DeleteNotification(ctx context.Context, notificationID int64) error {
	return p.execOne(ctx, "delete notification",
		`DELETE FROM notifications WHERE id = $1`, notificationID)
}

// execOne runs a single-row statement and reports ErrNotFound when it
// touched nothing.
func (p *Postgres) execOne(ctx context.Context, op, sql string, args ...any) error {
	if err := p.check(op); err != nil {
		return err
	}
	tag, err := p.db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return Unavailable(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
