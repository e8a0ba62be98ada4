package models

// Listing is one render of a user's reminders. Display ids are 1..N in
// iteration order and are only meaningful together with Generation.
type Listing struct {
	UserID     int64
	Generation int64
	Entries    []*ListEntry
}

type ListEntry struct {
	DisplayID int
	Reminder  *Reminder
	// Lead-time notifications still pending; the main alert is not included.
	Notifications []*Notification
}

// Key returns the reminder key behind a display id of this render.
func (l *Listing) Key(displayID int) (string, bool) {
	if l == nil || displayID < 1 || displayID > len(l.Entries) {
		return "", false
	}
	return l.Entries[displayID-1].Reminder.Key, true
}

func (l *Listing) Empty() bool {
	return l == nil || len(l.Entries) == 0
}
