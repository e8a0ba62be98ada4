// Package sqlite is the single-file Store used for local deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/repository"
)

//go:embed schema.sql
var schema string

type Store struct {
	db     *sql.DB
	log    zerolog.Logger
	closed atomic.Bool
}

var _ repository.Store = (*Store)(nil)

// Open creates the database file (and its directory) if needed and applies
// the schema.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; every query goes through this one conn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			log.Warn().Err(err).Str("pragma", pragma).Msg("sqlite pragma failed")
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) check(op string) error {
	if s == nil || s.db == nil || s.closed.Load() {
		return &repository.StorageError{Op: op, Err: errors.New("store is closed")}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if err := s.check(op); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Unavailable(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return repository.Unavailable(op, err)
	}
	return repository.Unavailable(op, tx.Commit())
}

func unix(t time.Time) int64 { return t.UTC().Unix() }

func fromUnix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func (s *Store) CreateReminder(ctx context.Context, userID int64, description string, eventAt time.Time) (*models.Reminder, error) {
	const op = "create reminder"
	if err := s.check(op); err != nil {
		return nil, err
	}
	reminder := &models.Reminder{
		Key:         uuid.NewString(),
		UserID:      userID,
		Description: description,
		EventAt:     eventAt.UTC().Truncate(time.Minute),
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (key, user_id, description, event_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		reminder.Key, reminder.UserID, reminder.Description, unix(reminder.EventAt), unix(reminder.CreatedAt),
	)
	if err != nil {
		return nil, repository.Unavailable(op, err)
	}
	return reminder, nil
}

const insertNotificationSQL = `INSERT INTO notifications
	(reminder_key, user_id, fire_at, description, lead_label, is_main, category)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNotification(ctx context.Context, db execer, n *models.Notification) error {
	res, err := db.ExecContext(ctx, insertNotificationSQL,
		n.ReminderKey, n.UserID, unix(n.FireAt), n.Description, n.LeadLabel, n.IsMain, n.Category,
	)
	if err != nil {
		return err
	}
	n.ID, err = res.LastInsertId()
	return err
}

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	const op = "create notification"
	if err := s.check(op); err != nil {
		return err
	}
	return repository.Unavailable(op, insertNotification(ctx, s.db, n))
}

func (s *Store) CreateNotifications(ctx context.Context, batch []*models.Notification) error {
	return s.inTx(ctx, "create notifications", func(tx *sql.Tx) error {
		for _, n := range batch {
			if err := insertNotification(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) DueNotifications(ctx context.Context, now time.Time, window time.Duration) ([]*models.DueNotification, error) {
	const op = "due notifications"
	if err := s.check(op); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.reminder_key, n.user_id, n.fire_at, n.description, n.lead_label,
		        n.is_main, n.category, n.sent, r.event_at, COALESCE(us.timezone, ?)
		 FROM notifications n
		 JOIN reminders r ON r.key = n.reminder_key
		 LEFT JOIN user_settings us ON us.user_id = n.user_id
		 WHERE n.sent = 0 AND n.fire_at >= ? AND n.fire_at <= ?
		 ORDER BY n.fire_at ASC, n.id ASC`,
		models.DefaultTimezone, unix(now.Add(-window)), unix(now.Add(window)),
	)
	if err != nil {
		return nil, repository.Unavailable(op, err)
	}
	defer rows.Close()

	var due []*models.DueNotification
	for rows.Next() {
		d := &models.DueNotification{}
		var fireAt, eventAt int64
		if err := rows.Scan(&d.ID, &d.ReminderKey, &d.UserID, &fireAt, &d.Description, &d.LeadLabel,
			&d.IsMain, &d.Category, &d.Sent, &eventAt, &d.Timezone); err != nil {
			return nil, repository.Unavailable(op, err)
		}
		d.FireAt = fromUnix(fireAt)
		d.EventAt = fromUnix(eventAt)
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Unavailable(op, err)
	}
	return due, nil
}

func (s *Store) MarkSent(ctx context.Context, notificationID int64) error {
	return s.execOne(ctx, "mark sent", `UPDATE notifications SET sent = 1 WHERE id = ?`, notificationID)
}

func (s *Store) DeleteNotification(ctx context.Context, notificationID int64) error {
	return s.execOne(ctx, "delete notification", `DELETE FROM notifications WHERE id = ?`, notificationID)
}

func (s *Store) execOne(ctx context.Context, op, query string, args ...any) error {
	if err := s.check(op); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return repository.Unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return repository.Unavailable(op, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteReminder(ctx context.Context, userID int64, key string) error {
	return s.inTx(ctx, "delete reminder", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM notifications WHERE reminder_key = ? AND user_id = ?`, key, userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE key = ? AND user_id = ?`, key, userID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (s *Store) DeleteReminderCascade(ctx context.Context, key string) (int, error) {
	var removed int
	err := s.inTx(ctx, "delete reminder cascade", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM notifications WHERE reminder_key = ?`, key)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE key = ?`, key); err != nil {
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

func (s *Store) ListReminders(ctx context.Context, userID int64) (*models.Listing, error) {
	listing := &models.Listing{UserID: userID}

	err := s.inTx(ctx, "list reminders", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT r.key, r.user_id, r.description, r.event_at, r.created_at,
			        n.id, n.fire_at, n.description, n.lead_label, n.is_main, n.category, n.sent
			 FROM reminders r
			 LEFT JOIN notifications n ON n.reminder_key = r.key AND n.is_main = 0
			 WHERE r.user_id = ?
			 ORDER BY r.event_at ASC, r.created_at ASC, r.rowid ASC, n.fire_at ASC`,
			userID,
		)
		if err != nil {
			return err
		}

		var current *models.ListEntry
		for rows.Next() {
			var (
				r                  models.Reminder
				eventAt, createdAt int64
				nID, nFireAt       sql.NullInt64
				nDesc, nLabel      sql.NullString
				nCat               sql.NullString
				nIsMain, nSent     sql.NullBool
			)
			if err := rows.Scan(&r.Key, &r.UserID, &r.Description, &eventAt, &createdAt,
				&nID, &nFireAt, &nDesc, &nLabel, &nIsMain, &nCat, &nSent); err != nil {
				rows.Close()
				return err
			}
			if current == nil || current.Reminder.Key != r.Key {
				r.EventAt = fromUnix(eventAt)
				r.CreatedAt = fromUnix(createdAt)
				current = &models.ListEntry{DisplayID: len(listing.Entries) + 1, Reminder: &r}
				listing.Entries = append(listing.Entries, current)
			}
			if !nID.Valid {
				continue
			}
			current.Notifications = append(current.Notifications, &models.Notification{
				ID:          nID.Int64,
				ReminderKey: r.Key,
				UserID:      r.UserID,
				FireAt:      fromUnix(nFireAt.Int64),
				Description: nDesc.String,
				LeadLabel:   nLabel.String,
				IsMain:      nIsMain.Bool,
				Category:    nCat.String,
				Sent:        nSent.Bool,
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		return replaceDisplayIDs(ctx, tx, listing)
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func replaceDisplayIDs(ctx context.Context, tx *sql.Tx, listing *models.Listing) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO display_generations (user_id, generation) VALUES (?, 1)
		 ON CONFLICT (user_id) DO UPDATE SET generation = display_generations.generation + 1
		 RETURNING generation`,
		listing.UserID,
	).Scan(&listing.Generation)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM display_ids WHERE user_id = ?`, listing.UserID); err != nil {
		return err
	}
	for _, e := range listing.Entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO display_ids (user_id, display_id, reminder_key, generation) VALUES (?, ?, ?, ?)`,
			listing.UserID, e.DisplayID, e.Reminder.Key, listing.Generation,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ResolveDisplayID(ctx context.Context, userID int64, generation int64, displayID int) (string, error) {
	const op = "resolve display id"
	if err := s.check(op); err != nil {
		return "", err
	}

	var (
		key     string
		current int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT reminder_key, generation FROM display_ids WHERE user_id = ? AND display_id = ?`,
		userID, displayID,
	).Scan(&key, &current)
	if errors.Is(err, sql.ErrNoRows) {
		if generation == 0 {
			return "", repository.ErrNotFound
		}
		err = s.db.QueryRowContext(ctx,
			`SELECT generation FROM display_generations WHERE user_id = ?`, userID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && current != generation) {
			return "", repository.ErrStaleListing
		}
		if err != nil {
			return "", repository.Unavailable(op, err)
		}
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", repository.Unavailable(op, err)
	}
	if generation != 0 && current != generation {
		return "", repository.ErrStaleListing
	}
	return key, nil
}

func (s *Store) GetTimezone(ctx context.Context, userID int64) (string, error) {
	const op = "get timezone"
	if err := s.check(op); err != nil {
		return "", err
	}
	var zone string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_settings (user_id, timezone) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = excluded.user_id
		 RETURNING timezone`,
		userID, models.DefaultTimezone,
	).Scan(&zone)
	if err != nil {
		return "", repository.Unavailable(op, err)
	}
	return zone, nil
}

func (s *Store) SetTimezone(ctx context.Context, userID int64, zone string) error {
	const op = "set timezone"
	if err := s.check(op); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, timezone) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET timezone = excluded.timezone`,
		userID, zone,
	)
	return repository.Unavailable(op, err)
}
