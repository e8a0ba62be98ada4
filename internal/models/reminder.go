package models

import "time"

type Reminder struct {
	Key         string    `json:"key"`
	UserID      int64     `json:"user_id"`
	Description string    `json:"description"`
	EventAt     time.Time `json:"event_at"` // UTC, minute precision
	CreatedAt   time.Time `json:"created_at"`
}
