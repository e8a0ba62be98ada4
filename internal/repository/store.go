package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hray3182/nudge/internal/models"
)

var (
	// ErrUnavailable is matched by every failure of the storage backend,
	// including calls on a closed store.
	ErrUnavailable = errors.New("storage unavailable")
	ErrNotFound    = errors.New("not found")
	// ErrStaleListing means a display id came from a listing that has since
	// been re-rendered.
	ErrStaleListing = errors.New("listing is out of date")
)

// StorageError records the operation that hit a backend failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrUnavailable, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

// Unavailable wraps a backend error for op. Sentinel errors of this package
// pass through unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStaleListing) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Store is the only owner of persisted reminder state. Every method commits
// atomically on its own; none of them spans another.
type Store interface {
	CreateReminder(ctx context.Context, userID int64, description string, eventAt time.Time) (*models.Reminder, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateNotifications(ctx context.Context, batch []*models.Notification) error

	// DueNotifications returns unsent notifications firing within
	// [now-window, now+window], earliest first.
	DueNotifications(ctx context.Context, now time.Time, window time.Duration) ([]*models.DueNotification, error)
	MarkSent(ctx context.Context, notificationID int64) error

	DeleteReminder(ctx context.Context, userID int64, key string) error
	DeleteReminderCascade(ctx context.Context, key string) (int, error)
	DeleteNotification(ctx context.Context, notificationID int64) error

	// ListReminders renders the user's reminders and replaces the user's
	// display-id mapping with the one returned.
	ListReminders(ctx context.Context, userID int64) (*models.Listing, error)
	// ResolveDisplayID maps a display id back to a reminder key. A zero
	// generation accepts whatever mapping is current.
	ResolveDisplayID(ctx context.Context, userID int64, generation int64, displayID int) (string, error)

	GetTimezone(ctx context.Context, userID int64) (string, error)
	SetTimezone(ctx context.Context, userID int64, zone string) error

	Close() error
}
