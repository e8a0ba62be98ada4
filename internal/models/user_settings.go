package models

// DefaultTimezone is used for users who never picked a zone.
const DefaultTimezone = "UTC"
