package timezone

import (
	"errors"
	"testing"
	"time"
)

func TestFromOffset(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"GMT+3", "Etc/GMT-3"},
		{"gmt-5", "Etc/GMT+5"},
		{" GMT+14 ", "Etc/GMT-14"},
		{"GMT-12", "Etc/GMT+12"},
		{"GMT0", "Etc/GMT+0"},
	}
	for _, tt := range tests {
		got, err := FromOffset(tt.in)
		if err != nil {
			t.Fatalf("FromOffset(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("FromOffset(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFromOffsetRejects(t *testing.T) {
	for _, in := range []string{"", "GMT", "UTC+3", "GMT+15", "GMT-13", "GMT+3.5", "GMT+x"} {
		if _, err := FromOffset(in); !errors.Is(err, ErrInvalidOffset) {
			t.Fatalf("FromOffset(%q) error = %v, want ErrInvalidOffset", in, err)
		}
	}
}

func TestDisplay(t *testing.T) {
	tests := map[string]string{
		"Etc/GMT-3":     "GMT+3",
		"Etc/GMT+5":     "GMT-5",
		"Etc/GMT+0":     "GMT+0",
		"UTC":           "UTC",
		"Europe/Moscow": "Europe/Moscow",
	}
	for in, want := range tests {
		if got := Display(in); got != want {
			t.Fatalf("Display(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormat(t *testing.T) {
	at := time.Date(2031, 3, 25, 11, 30, 0, 0, time.UTC)
	if got := Format(at, "Etc/GMT-3"); got != "25.03.2031 14:30" {
		t.Fatalf("Format in GMT+3 = %q", got)
	}
	if got := Format(at, "Etc/GMT+5"); got != "25.03.2031 06:30" {
		t.Fatalf("Format in GMT-5 = %q", got)
	}
	if got := Format(at, "Not/AZone"); got != "25.03.2031 11:30" {
		t.Fatalf("unknown zone should fall back to UTC, got %q", got)
	}
}

func TestParseLocal(t *testing.T) {
	got, err := ParseLocal("25.03.2031 14:30", "Etc/GMT-3")
	if err != nil {
		t.Fatalf("ParseLocal: %v", err)
	}
	want := time.Date(2031, 3, 25, 11, 30, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("ParseLocal = %v, want %v", got, want)
	}

	if _, err := ParseLocal("2031-03-25 14:30", "UTC"); err == nil {
		t.Fatalf("expected error for wrong layout")
	}
}
