package models

import "time"

// Category tags distinguish the event-moment alert from lead-time reminders.
const (
	CategoryMain     = "MAIN_EVENT"
	CategoryReminder = "REMINDER"
)

type Notification struct {
	ID          int64     `json:"id"`
	ReminderKey string    `json:"reminder_key"`
	UserID      int64     `json:"user_id"`
	FireAt      time.Time `json:"fire_at"`
	Description string    `json:"description"`
	LeadLabel   string    `json:"lead_label"`
	IsMain      bool      `json:"is_main"`
	Category    string    `json:"category"`
	Sent        bool      `json:"sent"`
}

// DueNotification is a notification joined with what the dispatcher needs
// to render it: the owning reminder's event time and the user's timezone.
type DueNotification struct {
	Notification
	EventAt  time.Time `json:"event_at"`
	Timezone string    `json:"timezone"`
}
