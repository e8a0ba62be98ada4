package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hray3182/nudge/internal/models"
)

func (p *Postgres) CreateReminder(ctx context.Context, userID int64, description string, eventAt time.Time) (*models.Reminder, error) {
	const op = "create reminder"
	if err := p.check(op); err != nil {
		return nil, err
	}

	reminder := &models.Reminder{
		Key:         uuid.NewString(),
		UserID:      userID,
		Description: description,
		EventAt:     eventAt.UTC().Truncate(time.Minute),
	}
	err := p.db.Pool.QueryRow(ctx,
		`INSERT INTO reminders (key, user_id, description, event_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		reminder.Key, reminder.UserID, reminder.Description, reminder.EventAt,
	).Scan(&reminder.CreatedAt)
	if err != nil {
		return nil, Unavailable(op, err)
	}
	reminder.CreatedAt = reminder.CreatedAt.UTC()
	return reminder, nil
}

func (p *Postgres) DeleteReminder(ctx context.Context, userID int64, key string) error {
	return p.inTx(ctx, "delete reminder", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM notifications WHERE reminder_key = $1 AND user_id = $2`,
			key, userID,
		); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM reminders WHERE key = $1 AND user_id = $2`,
			key, userID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (p *Postgres) DeleteReminderCascade(ctx context.Context, key string) (int, error) {
	var removed int
	err := p.inTx(ctx, "delete reminder cascade", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id FROM notifications WHERE reminder_key = $1 FOR UPDATE`,
			key,
		)
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM notifications WHERE id = ANY($1)`, ids); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM reminders WHERE key = $1`, key); err != nil {
			return err
		}
		removed = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (p *Postgres) ListReminders(ctx context.Context, userID int64) (*models.Listing, error) {
	listing := &models.Listing{UserID: userID}

	err := p.inTx(ctx, "list reminders", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT r.key, r.user_id, r.description, r.event_at, r.created_at,
			        n.id, n.fire_at, n.description, n.lead_label, n.is_main, n.category, n.sent
			 FROM reminders r
			 LEFT JOIN notifications n ON n.reminder_key = r.key AND n.is_main = FALSE
			 WHERE r.user_id = $1
			 ORDER BY r.event_at ASC, r.created_at ASC, r.seq ASC, n.fire_at ASC`,
			userID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		var current *models.ListEntry
		for rows.Next() {
			var (
				r       models.Reminder
				nID     *int64
				nFireAt *time.Time
				nDesc   *string
				nLabel  *string
				nIsMain *bool
				nCat    *string
				nSent   *bool
			)
			if err := rows.Scan(&r.Key, &r.UserID, &r.Description, &r.EventAt, &r.CreatedAt,
				&nID, &nFireAt, &nDesc, &nLabel, &nIsMain, &nCat, &nSent); err != nil {
				return err
			}
			if current == nil || current.Reminder.Key != r.Key {
				r.EventAt = r.EventAt.UTC()
				r.CreatedAt = r.CreatedAt.UTC()
				current = &models.ListEntry{DisplayID: len(listing.Entries) + 1, Reminder: &r}
				listing.Entries = append(listing.Entries, current)
			}
			if nID == nil {
				continue
			}
			current.Notifications = append(current.Notifications, &models.Notification{
				ID:          *nID,
				ReminderKey: r.Key,
				UserID:      r.UserID,
				FireAt:      nFireAt.UTC(),
				Description: *nDesc,
				LeadLabel:   *nLabel,
				IsMain:      *nIsMain,
				Category:    *nCat,
				Sent:        *nSent,
			})
		}
		if err := rows.Err(); err != nil {
			return err
		}

		return p.replaceDisplayIDs(ctx, tx, listing)
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}
