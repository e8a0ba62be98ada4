// Package timezone converts between the GMT±N offsets users type and the
// Etc/GMT zone ids that are stored, and renders instants in a user's zone.
package timezone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	MinOffset = -12
	MaxOffset = 14

	// DisplayLayout is how dates are shown to users and how /manual input is parsed.
	DisplayLayout = "02.01.2006 15:04"
)

var ErrInvalidOffset = errors.New("invalid GMT offset")

// FromOffset turns user input like "GMT+3" into the zone id "Etc/GMT-3".
// The Etc/ names carry the inverted sign.
func FromOffset(s string) (string, error) {
	hours, err := ParseOffset(s)
	if err != nil {
		return "", err
	}
	if hours > 0 {
		return fmt.Sprintf("Etc/GMT-%d", hours), nil
	}
	return fmt.Sprintf("Etc/GMT+%d", -hours), nil
}

// ParseOffset reads "GMT+3", "gmt-5" or "GMT0" as whole hours east of UTC.
func ParseOffset(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	rest, ok := strings.CutPrefix(s, "GMT")
	if !ok || rest == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
	}
	hours, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
	}
	if hours < MinOffset || hours > MaxOffset {
		return 0, fmt.Errorf("%w: %d is outside %d..%+d", ErrInvalidOffset, hours, MinOffset, MaxOffset)
	}
	return hours, nil
}

// Display renders a stored zone id the way users enter it: Etc/GMT-3 -> GMT+3.
// Other ids are returned as they are.
func Display(zone string) string {
	if hours, ok := etcOffset(zone); ok {
		if hours == 0 {
			return "GMT+0"
		}
		return fmt.Sprintf("GMT%+d", hours)
	}
	return zone
}

// Load resolves a zone id. Etc/GMT offsets are built directly so they work
// without a system tz database; anything unknown falls back to UTC.
func Load(zone string) *time.Location {
	if zone == "" || zone == "UTC" {
		return time.UTC
	}
	if hours, ok := etcOffset(zone); ok {
		return time.FixedZone(zone, hours*3600)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Format renders t in zone using DisplayLayout.
func Format(t time.Time, zone string) string {
	return t.In(Load(zone)).Format(DisplayLayout)
}

// ParseLocal reads DisplayLayout input as wall time in zone and returns it in UTC.
func ParseLocal(s, zone string) (time.Time, error) {
	t, err := time.ParseInLocation(DisplayLayout, strings.TrimSpace(s), Load(zone))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// etcOffset returns hours east of UTC for an Etc/GMT±N id.
func etcOffset(zone string) (int, bool) {
	rest, ok := strings.CutPrefix(zone, "Etc/GMT")
	if !ok {
		return 0, false
	}
	if rest == "" {
		return 0, true
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < -MaxOffset || n > -MinOffset {
		return 0, false
	}
	return -n, true
}
